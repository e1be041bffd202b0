package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/dot2gua/hbase98learning/hbck/inventory"
	"github.com/dot2gua/hbase98learning/hbck/region"
	"github.com/dot2gua/hbase98learning/hbck/stats"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

// Scanner walks root/<table>/<region> and loads every region descriptor.
type Scanner struct {
	FS      FileSystem
	Root    string
	Workers int
	// attempts per directory before it becomes a ScanError
	Retries int
	// bound on every single filesystem call
	Timeout time.Duration
}

// ScanAll scans every table under the root. Only a root that cannot be
// listed fails the scan; everything below it is recorded per unit.
func (s *Scanner) ScanAll(ctx context.Context) (*inventory.Filesystem, error) {
	start := time.Now()
	defer func() {
		stats.ScanHistogram.WithLabelValues(inventory.SourceFilesystem).Observe(time.Since(start).Seconds())
	}()

	var tables []string
	attempts, err := util.Retry(ctx, "list tables under "+s.Root, s.Retries, func() (err error) {
		tables, err = util.CallWithTimeout(ctx, s.Timeout, func(ctx context.Context) ([]string, error) {
			return ListTables(ctx, s.FS, s.Root)
		})
		return err
	})
	if err != nil {
		stats.ScanErrorCounter.WithLabelValues(inventory.SourceFilesystem).Inc()
		return nil, &inventory.ScanError{Source: inventory.SourceFilesystem, Unit: s.Root, Attempts: attempts, Err: err}
	}

	result := inventory.NewFilesystem()
	for _, table := range tables {
		if err := s.scanTable(ctx, table, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ScanTable scans one table. Failures are recorded in the returned
// inventory; an error means the context is done.
func (s *Scanner) ScanTable(ctx context.Context, table string) (*inventory.Filesystem, error) {
	result := inventory.NewFilesystem()
	if err := s.scanTable(ctx, table, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Scanner) scanTable(ctx context.Context, table string, result *inventory.Filesystem) error {
	tableDir := TableDir(s.Root, table)
	result.AddTable(table)

	var names []string
	attempts, err := util.Retry(ctx, "list "+tableDir, s.Retries, func() (err error) {
		names, err = util.CallWithTimeout(ctx, s.Timeout, func(ctx context.Context) ([]string, error) {
			return s.FS.ListChildDirectories(ctx, tableDir)
		})
		return err
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		s.recordScanError(result, &inventory.ScanError{Source: inventory.SourceFilesystem, Table: table, Unit: tableDir, Attempts: attempts, Err: err})
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(max(s.Workers, 1))
	for _, name := range visible(names) {
		regionDir := path.Join(tableDir, name)
		g.Go(func() error {
			s.scanRegionDir(ctx, table, name, regionDir, result)
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	glog.V(1).Infof("%s scanned table %s: %d region dirs", util.GetRunId(ctx), table, len(names))
	return nil
}

func (s *Scanner) scanRegionDir(ctx context.Context, table, name, regionDir string, result *inventory.Filesystem) {
	var descriptor *region.Descriptor
	var families []string
	attempts, err := util.Retry(ctx, "read "+regionDir, s.Retries, func() (err error) {
		descriptor, err = util.CallWithTimeout(ctx, s.Timeout, func(ctx context.Context) (*region.Descriptor, error) {
			return ReadDescriptor(ctx, s.FS, regionDir)
		})
		if errors.Is(err, ErrDescriptorNotFound) || errors.Is(err, region.ErrMalformedDescriptor) {
			return util.Permanent(err)
		}
		if err != nil {
			return err
		}
		children, err := util.CallWithTimeout(ctx, s.Timeout, func(ctx context.Context) ([]string, error) {
			return s.FS.ListChildDirectories(ctx, regionDir)
		})
		families = visible(children)
		return err
	})

	switch {
	case errors.Is(err, ErrDescriptorNotFound):
		result.AddDegenerate(inventory.DegenerateDir{Table: table, Path: regionDir, Reason: "no " + RegionInfoFile})
	case errors.Is(err, region.ErrMalformedDescriptor):
		result.AddDegenerate(inventory.DegenerateDir{Table: table, Path: regionDir, Reason: err.Error()})
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		s.recordScanError(result, &inventory.ScanError{Source: inventory.SourceFilesystem, Table: table, Unit: regionDir, Attempts: attempts, Err: err})
	case descriptor.Table != table:
		result.AddDegenerate(inventory.DegenerateDir{Table: table, Path: regionDir,
			Reason: fmt.Sprintf("descriptor belongs to table %s", descriptor.Table)})
	case descriptor.EncodedName() != name:
		result.AddDegenerate(inventory.DegenerateDir{Table: table, Path: regionDir,
			Reason: fmt.Sprintf("descriptor names region %s", descriptor.EncodedName())})
	default:
		result.AddRecord(&inventory.FilesystemRecord{Descriptor: descriptor, Path: regionDir, Families: families})
	}
}

func (s *Scanner) recordScanError(result *inventory.Filesystem, scanErr *inventory.ScanError) {
	glog.Warningf("%v", scanErr)
	stats.ScanErrorCounter.WithLabelValues(inventory.SourceFilesystem).Inc()
	result.AddScanError(scanErr)
}
