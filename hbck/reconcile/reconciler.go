package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/golang/glog"

	"github.com/dot2gua/hbase98learning/hbck/inventory"
	"github.com/dot2gua/hbase98learning/hbck/region"
	"github.com/dot2gua/hbase98learning/hbck/stats"
)

// Inconsistency is one classified finding. Unit names the row, directory
// or server for findings that are not about a single region.
type Inconsistency struct {
	Kind     ErrorKind
	Key      region.Key
	Unit     string    `json:",omitempty"`
	Detail   string    `json:",omitempty"`
	Evidence *Evidence `json:",omitempty"`
}

func (i *Inconsistency) String() string {
	var b strings.Builder
	b.WriteString(i.Kind.String())
	b.WriteByte(' ')
	switch {
	case i.Unit != "":
		fmt.Fprintf(&b, "%s %s", i.Key.Table, i.Unit)
	case i.Key.RegionId == 0:
		fmt.Fprintf(&b, "%s %s", i.Key.Table, i.Key.RangeString())
	default:
		fmt.Fprintf(&b, "%s %s", i.Key, i.Key.RangeString())
	}
	if i.Evidence != nil && len(i.Evidence.Servers) > 0 {
		fmt.Fprintf(&b, " on %s", strings.Join(i.Evidence.Servers, ","))
	}
	return b.String()
}

func (i *Inconsistency) less(o *Inconsistency) bool {
	if i.Key != o.Key {
		return i.Key.Less(o.Key)
	}
	if i.Kind != o.Kind {
		return i.Kind < o.Kind
	}
	return i.Unit < o.Unit
}

type TableReport struct {
	Table       string
	// regions found on the filesystem
	Regions     int
	Tiling      []TilingViolation `json:",omitempty"`
	Rebuildable bool
	// findings without any durable evidence, a rebuild can never restore them
	Irrecoverable int
}

// Report is the outcome of one reconciliation. Inconsistencies are sorted
// by region key.
type Report struct {
	Inconsistencies []*Inconsistency
	Tables          map[string]*TableReport
	DeploymentKnown bool
}

func (r *Report) Clean() bool {
	if len(r.Inconsistencies) > 0 {
		return false
	}
	for _, t := range r.Tables {
		if len(t.Tiling) > 0 {
			return false
		}
	}
	return true
}

func (r *Report) CountByKind() map[ErrorKind]int {
	counts := make(map[ErrorKind]int)
	for _, i := range r.Inconsistencies {
		counts[i.Kind]++
	}
	return counts
}

func (r *Report) TableNames() []string {
	names := make([]string, 0, len(r.Tables))
	for name := range r.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reconciler compares the three inventories. It never does I/O.
type Reconciler struct {
	// Tables limits the report to these tables when not empty.
	Tables []string
}

func (rc *Reconciler) included(table string) bool {
	if len(rc.Tables) == 0 {
		return true
	}
	for _, t := range rc.Tables {
		if t == table {
			return true
		}
	}
	return false
}

// Reconcile classifies every region seen by any source, then reports the
// parts of the catalog key space nobody has, the rows and directories that
// could not be parsed, the units that could not be scanned, and unfinished
// rebuild commits. Each finding is handed to reporter in sorted order.
func (rc *Reconciler) Reconcile(catalog *inventory.Catalog, fs *inventory.Filesystem, deployment *inventory.Deployment, reporter ErrorReporter) *Report {
	if deployment == nil {
		deployment = inventory.Absent()
	}
	report := &Report{
		Tables:          make(map[string]*TableReport),
		DeploymentKnown: deployment.Live,
	}
	var found []*Inconsistency

	keys := make(map[region.Key]struct{})
	for key := range catalog.Entries {
		keys[key] = struct{}{}
	}
	for key := range fs.Records {
		keys[key] = struct{}{}
	}
	if deployment.Live {
		for key := range deployment.Regions {
			keys[key] = struct{}{}
		}
	}
	for key := range keys {
		if !rc.included(key.Table) {
			continue
		}
		evidence := rc.gather(key, catalog, fs, deployment)
		if kind, ok := Classify(evidence); ok {
			found = append(found, &Inconsistency{Kind: kind, Key: key, Evidence: &evidence})
		}
	}

	for _, table := range catalog.Tables() {
		if !rc.included(table) {
			continue
		}
		found = append(found, rc.missingEverywhere(table, catalog, fs, deployment)...)
	}

	for _, bad := range catalog.BadRows {
		table := region.TableOfRow(bad.RowKey)
		if !rc.included(table) {
			continue
		}
		i := &Inconsistency{Kind: BAD_DESCRIPTOR, Key: region.Key{Table: table}, Unit: bad.RowKey}
		if bad.Err != nil {
			i.Detail = bad.Err.Error()
		}
		found = append(found, i)
	}
	for _, dir := range fs.Degenerate {
		if !rc.included(dir.Table) {
			continue
		}
		found = append(found, &Inconsistency{Kind: DEGENERATE_REGION_DIR, Key: region.Key{Table: dir.Table}, Unit: dir.Path, Detail: dir.Reason})
	}
	for _, scanErr := range append(append([]*inventory.ScanError(nil), fs.ScanErrors...), deployment.ScanErrors...) {
		if scanErr.Table != "" && !rc.included(scanErr.Table) {
			continue
		}
		found = append(found, &Inconsistency{Kind: SCAN_FAILURE, Key: region.Key{Table: scanErr.Table},
			Unit: scanErr.Source + ":" + scanErr.Unit, Detail: scanErr.Error()})
	}
	for table, generation := range catalog.PendingCommits {
		if !rc.included(table) {
			continue
		}
		found = append(found, &Inconsistency{Kind: PARTIAL_COMMIT, Key: region.Key{Table: table},
			Unit: "generation " + fmt.Sprint(generation), Detail: "rebuild commit did not finish, rerun rebuild to complete it"})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].less(found[j]) })
	for _, i := range found {
		stats.InconsistencyCounter.WithLabelValues(i.Kind.String()).Inc()
		if reporter != nil {
			reporter.Report(i)
		}
	}
	report.Inconsistencies = found

	tables := make(map[string]struct{})
	for _, t := range fs.Tables {
		tables[t] = struct{}{}
	}
	for _, t := range catalog.Tables() {
		tables[t] = struct{}{}
	}
	for t := range tables {
		if !rc.included(t) {
			continue
		}
		report.Tables[t] = tableReport(t, fs)
	}
	for _, i := range found {
		if t, ok := report.Tables[i.Key.Table]; ok && i.Kind.Irrecoverable() {
			t.Irrecoverable++
		}
	}
	glog.V(1).Infof("reconciled %d regions into %d inconsistencies over %d tables", len(keys), len(found), len(report.Tables))
	return report
}

func (rc *Reconciler) gather(key region.Key, catalog *inventory.Catalog, fs *inventory.Filesystem, deployment *inventory.Deployment) Evidence {
	evidence := Evidence{Live: deployment.Live}
	if entry, found := catalog.Entries[key]; found {
		evidence.InCatalog = true
		evidence.CatalogServer = entry.Server
		evidence.SplitParent = entry.Descriptor.IsSplitParent()
		evidence.Offline = entry.Descriptor.Offline
	}
	if record, found := fs.Records[key]; found {
		evidence.InFilesystem = true
		evidence.SplitParent = evidence.SplitParent || record.Descriptor.IsSplitParent()
	}
	if servers := deployment.ServersOf(key); servers != nil {
		// servers answer in any order
		evidence.Servers = append([]string{}, servers...)
		sort.Strings(evidence.Servers)
	}
	return evidence
}

// missingEverywhere finds holes in the catalog chain of table that no
// directory and no deployed region covers either.
func (rc *Reconciler) missingEverywhere(table string, catalog *inventory.Catalog, fs *inventory.Filesystem, deployment *inventory.Deployment) (found []*Inconsistency) {
	var declared []*region.Descriptor
	for _, entry := range catalog.TableEntries(table) {
		declared = append(declared, entry.Descriptor)
	}
	for _, v := range CheckTiling(declared) {
		if v.Kind != HOLE_IN_KEYSPACE {
			continue
		}
		var covering []*region.Descriptor
		for _, d := range fs.Descriptors(table) {
			if d.ReplicaId == v.ReplicaId && !d.IsSplitParent() {
				covering = append(covering, d)
			}
		}
		if deployment.Live {
			for key, d := range deployment.Descriptors {
				if key.Table == table && d.ReplicaId == v.ReplicaId {
					covering = append(covering, d)
				}
			}
		}
		for _, r := range MissingRanges(v.StartKey, v.EndKey, covering) {
			key := region.Key{Table: table, StartKey: string(r[0]), EndKey: string(r[1]), ReplicaId: v.ReplicaId}
			found = append(found, &Inconsistency{Kind: MISSING_EVERYWHERE, Key: key,
				Detail: "no catalog row, region directory or deployed region covers " + key.RangeString()})
		}
	}
	return
}

func tableReport(table string, fs *inventory.Filesystem) *TableReport {
	descriptors := fs.Descriptors(table)
	t := &TableReport{
		Table:   table,
		Regions: len(descriptors),
		Tiling:  CheckTiling(descriptors),
	}
	if len(descriptors) == 0 {
		t.Tiling = append(t.Tiling, TilingViolation{Kind: HOLE_IN_KEYSPACE, Table: table})
	}
	t.Rebuildable = len(t.Tiling) == 0 && len(fs.TableScanErrors(table)) == 0
	for _, d := range fs.Degenerate {
		if d.Table == table {
			t.Rebuildable = false
		}
	}
	return t
}
