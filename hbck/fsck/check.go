package fsck

import (
	"context"
	"errors"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/cluster"
	"github.com/dot2gua/hbase98learning/hbck/inventory"
	"github.com/dot2gua/hbase98learning/hbck/reconcile"
	"github.com/dot2gua/hbase98learning/hbck/storage"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

// Checker runs one read-only consistency check.
type Checker struct {
	Catalog    *catalog.Scanner
	Filesystem *storage.Scanner
	// nil when no cluster is configured; deployment is then unknown
	Cluster    *cluster.Scanner
	Reconciler *reconcile.Reconciler
}

// Check scans the three sources concurrently and reconciles them once all
// are done. It fails only when the catalog or the filesystem root cannot be
// read at all; a cluster that cannot be asked is reported as a scan failure
// with unknown deployment.
func (c *Checker) Check(ctx context.Context, reporter reconcile.ErrorReporter) (*reconcile.Report, error) {
	ctx = util.WithRunId(ctx)
	var (
		catalogInventory    *inventory.Catalog
		filesystemInventory *inventory.Filesystem
		deployment          = inventory.Absent()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		catalogInventory, err = c.Catalog.Scan(gctx)
		return
	})
	g.Go(func() (err error) {
		filesystemInventory, err = c.Filesystem.ScanAll(gctx)
		return
	})
	if c.Cluster != nil {
		g.Go(func() error {
			scanned, err := c.Cluster.Scan(gctx)
			var scanErr *inventory.ScanError
			if errors.As(err, &scanErr) {
				glog.Warningf("%s %v", util.GetRunId(ctx), scanErr)
				deployment.AddScanError(scanErr)
				return nil
			}
			if err != nil {
				return err
			}
			deployment = scanned
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reconciler := c.Reconciler
	if reconciler == nil {
		reconciler = &reconcile.Reconciler{}
	}
	report := reconciler.Reconcile(catalogInventory, filesystemInventory, deployment, reporter)
	glog.V(0).Infof("%s check found %d inconsistencies in %d tables", util.GetRunId(ctx), len(report.Inconsistencies), len(report.Tables))
	return report, nil
}
