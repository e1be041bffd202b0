package catalog

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/dot2gua/hbase98learning/hbck/inventory"
	"github.com/dot2gua/hbase98learning/hbck/region"
	"github.com/dot2gua/hbase98learning/hbck/stats"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

// Scanner reads the whole catalog, every table, into an inventory.
type Scanner struct {
	Catalog *Catalog
	Retries int
}

// Scan is a pure read. A row that does not decode lands in BadRows; only a
// catalog that cannot be listed at all fails the scan.
func (s *Scanner) Scan(ctx context.Context) (*inventory.Catalog, error) {
	start := time.Now()
	defer func() {
		stats.ScanHistogram.WithLabelValues(inventory.SourceCatalog).Observe(time.Since(start).Seconds())
	}()

	var result *inventory.Catalog
	attempts, err := util.Retry(ctx, "scan catalog "+s.Catalog.GetName(), s.Retries, func() error {
		result = inventory.NewCatalog()
		if err := s.Catalog.ListRows(ctx, "", func(entry *region.CatalogEntry) bool {
			result.Add(entry)
			return true
		}); err != nil {
			return err
		}
		markers, err := s.Catalog.ListMarkers(ctx)
		if err != nil {
			return err
		}
		result.PendingCommits = markers
		return nil
	})
	if err != nil {
		stats.ScanErrorCounter.WithLabelValues(inventory.SourceCatalog).Inc()
		return nil, &inventory.ScanError{
			Source:   inventory.SourceCatalog,
			Unit:     s.Catalog.GetName(),
			Attempts: attempts,
			Err:      err,
		}
	}

	glog.V(1).Infof("%s scanned %d catalog rows, %d bad rows, %d unfinished commits",
		util.GetRunId(ctx), len(result.Entries), len(result.BadRows), len(result.PendingCommits))
	return result, nil
}
