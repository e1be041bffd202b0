package reconcile

// Evidence is what the three sources say about one region.
type Evidence struct {
	InCatalog    bool
	InFilesystem bool
	// Live is false when the cluster is offline and deployment is unknown.
	Live          bool
	Servers       []string
	CatalogServer string
	SplitParent   bool
	Offline       bool
}

// Classify maps evidence to an inconsistency; ok is false for a consistent
// region.
//
//	catalog  filesystem  deployed        kind
//	no       no          no              MISSING_EVERYWHERE
//	no       yes         any             NOT_IN_CATALOG
//	yes      no          any             NOT_ON_FILESYSTEM
//	no       no          yes             NOT_IN_CATALOG_OR_FILESYSTEM
//	yes      yes         no (live)       NOT_DEPLOYED
//	yes      yes         >1 server       DUPLICATE_DEPLOYMENT
//	yes      yes         1, not catalog  SERVER_MISMATCH
//
// Split parents are offline by definition and are not expected anywhere
// but in the catalog. Other offline regions are not expected to be open.
func Classify(e Evidence) (kind ErrorKind, ok bool) {
	deployed := len(e.Servers)
	switch {
	case !e.InCatalog && !e.InFilesystem && deployed > 0:
		return NOT_IN_CATALOG_OR_FILESYSTEM, true
	case !e.InCatalog && !e.InFilesystem:
		return MISSING_EVERYWHERE, true
	case !e.InCatalog:
		return NOT_IN_CATALOG, true
	case e.SplitParent:
		return UNKNOWN, false
	case !e.InFilesystem:
		return NOT_ON_FILESYSTEM, true
	case !e.Live:
		return UNKNOWN, false
	case deployed == 0 && e.Offline:
		return UNKNOWN, false
	case deployed == 0:
		return NOT_DEPLOYED, true
	case deployed > 1:
		return DUPLICATE_DEPLOYMENT, true
	case e.CatalogServer != "" && e.CatalogServer != e.Servers[0]:
		return SERVER_MISMATCH, true
	}
	return UNKNOWN, false
}
