package fsck_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/catalog/memory"
	"github.com/dot2gua/hbase98learning/hbck/fsck"
	"github.com/dot2gua/hbase98learning/hbck/inventory"
	"github.com/dot2gua/hbase98learning/hbck/minicluster"
	"github.com/dot2gua/hbase98learning/hbck/reconcile"
	"github.com/dot2gua/hbase98learning/hbck/region"
	"github.com/dot2gua/hbase98learning/hbck/storage"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

func init() {
	util.RetryInitialInterval = time.Millisecond
	util.RetryMaxInterval = 5 * time.Millisecond
}

var errInjected = errors.New("injected store failure")

type crashingStore struct {
	*memory.MemoryStore
	armed bool
}

func (store *crashingStore) DeleteRows(ctx context.Context, keys []string) error {
	if store.armed {
		return errInjected
	}
	return store.MemoryStore.DeleteRows(ctx, keys)
}

func check(t *testing.T, mc *minicluster.MiniCluster) (*reconcile.Report, *reconcile.CollectingReporter) {
	t.Helper()
	checker := &fsck.Checker{
		Catalog:    mc.CatalogScanner(),
		Filesystem: mc.FilesystemScanner(),
		Cluster:    mc.ClusterScanner(),
	}
	reporter := reconcile.NewCollectingReporter()
	report, err := checker.Check(context.Background(), reporter)
	require.NoError(t, err)
	return report, reporter
}

func rebuilder(mc *minicluster.MiniCluster) *fsck.MetaRebuilder {
	return &fsck.MetaRebuilder{
		Catalog:       mc.Catalog,
		Filesystem:    mc.FilesystemScanner(),
		Cluster:       mc.ClusterScanner(),
		GatherRetries: 2,
	}
}

func catalogRows(t *testing.T, c *catalog.Catalog, table string) map[string]*region.CatalogEntry {
	t.Helper()
	rows := make(map[string]*region.CatalogEntry)
	require.NoError(t, c.ListRows(context.Background(), table, func(entry *region.CatalogEntry) bool {
		rows[entry.RowKey] = entry
		return true
	}))
	return rows
}

func rangesOf(rows map[string]*region.CatalogEntry) (ranges []string) {
	for _, entry := range rows {
		ranges = append(ranges, entry.Descriptor.Key().RangeString())
	}
	sort.Strings(ranges)
	return
}

func TestCheckHealthyCluster(t *testing.T) {
	mc := minicluster.Start(3)
	defer mc.Close()
	_, err := mc.CreateTable(context.Background(), "t", "k1", "k2", "k3")
	require.NoError(t, err)

	report, reporter := check(t, mc)
	assert.True(t, report.Clean(), "%v", reporter.Kinds())
	assert.True(t, report.DeploymentKnown)
	assert.True(t, report.Tables["t"].Rebuildable)
	assert.Equal(t, 4, report.Tables["t"].Regions)
}

func TestCheckIsRepeatable(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(2)
	defer mc.Close()
	regions, err := mc.CreateTable(ctx, "t", "a", "b")
	require.NoError(t, err)
	require.NoError(t, mc.DeleteRegion(ctx, regions[0], false, true, false))
	require.NoError(t, mc.Deploy(mc.ServerNames()[1], regions[2]))

	first, _ := check(t, mc)
	second, _ := check(t, mc)
	assert.Equal(t, first.Inconsistencies, second.Inconsistencies)
	assert.Equal(t, map[reconcile.ErrorKind]int{
		reconcile.NOT_IN_CATALOG:       1,
		reconcile.DUPLICATE_DEPLOYMENT: 1,
	}, first.CountByKind())
}

func TestCheckOfflineCluster(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(2)
	defer mc.Close()
	_, err := mc.CreateTable(ctx, "t", "m")
	require.NoError(t, err)
	mc.Shutdown()

	report, reporter := check(t, mc)
	assert.False(t, report.DeploymentKnown)
	assert.Empty(t, reporter.Errors(), "closed regions of a stopped cluster are not NOT_DEPLOYED")
}

// A table split at k1,k2,k3 loses [k1,k2) from both the catalog and the
// filesystem, then loses its whole catalog.
func TestHoleIsNeverRepaired(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(3)
	defer mc.Close()
	regions, err := mc.CreateTable(ctx, "t", "k1", "k2", "k3")
	require.NoError(t, err)
	require.Len(t, regions, 4)

	require.NoError(t, mc.DeleteRegion(ctx, regions[1], true, true, true))
	report, reporter := check(t, mc)
	require.True(t, reconcile.Matches(reporter, reconcile.MISSING_EVERYWHERE), "got %v", reporter.Kinds())
	assert.Equal(t, "k1", report.Inconsistencies[0].Key.StartKey)
	assert.Equal(t, "k2", report.Inconsistencies[0].Key.EndKey)

	require.NoError(t, mc.WipeCatalog(ctx))
	_, reporter = check(t, mc)
	assert.True(t, reconcile.Matches(reporter, reconcile.NOT_IN_CATALOG, reconcile.NOT_IN_CATALOG, reconcile.NOT_IN_CATALOG),
		"got %v", reporter.Kinds())

	mc.Shutdown()
	result, err := rebuilder(mc).Rebuild(ctx, true)
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	assert.False(t, result.Succeeded())
	table := result.Tables[0]
	assert.Equal(t, fsck.PhaseFailed, table.Phase)
	assert.Equal(t, fsck.PhaseValidate, table.FailedIn)
	var validation *fsck.ValidationFailure
	require.True(t, errors.As(table.Err, &validation))
	require.Len(t, validation.Violations, 1)
	assert.Equal(t, reconcile.HOLE_IN_KEYSPACE, validation.Violations[0].Kind)
	assert.Equal(t, []byte("k1"), validation.Violations[0].StartKey)
	assert.Equal(t, []byte("k2"), validation.Violations[0].EndKey)
	assert.Contains(t, table.Reason, `"k1"`)
	assert.Empty(t, catalogRows(t, mc.Catalog, "t"))

	require.NoError(t, mc.Restart(ctx))
	_, reporter = check(t, mc)
	assert.True(t, reconcile.Matches(reporter, reconcile.NOT_IN_CATALOG, reconcile.NOT_IN_CATALOG, reconcile.NOT_IN_CATALOG),
		"got %v", reporter.Kinds())
}

func TestFailedRebuildKeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(1)
	defer mc.Close()
	regions, err := mc.CreateTable(ctx, "t", "k1", "k2", "k3")
	require.NoError(t, err)
	require.NoError(t, mc.DeleteRegion(ctx, regions[1], true, true, true))
	mc.Shutdown()
	before := catalogRows(t, mc.Catalog, "t")
	require.Len(t, before, 3)

	result, err := rebuilder(mc).Rebuild(ctx, true, "t")
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Equal(t, before, catalogRows(t, mc.Catalog, "t"))
}

func TestRebuildReplacesCatalogWithFilesystem(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(2)
	defer mc.Close()
	regions, err := mc.CreateTable(ctx, "t", "k1", "k2", "k3")
	require.NoError(t, err)
	_, err = mc.CreateTable(ctx, "other", "m")
	require.NoError(t, err)
	otherBefore := catalogRows(t, mc.Catalog, "other")

	// rows the filesystem knows nothing about
	stale := region.NewCatalogEntry(&region.Descriptor{Table: "t", StartKey: []byte("k0"), EndKey: []byte("k5"), RegionId: 1}, "", region.StateOpen, time.Now())
	require.NoError(t, mc.Catalog.PutEntries(ctx, []*region.CatalogEntry{stale}))
	require.NoError(t, mc.Catalog.DeleteEntries(ctx, []string{regions[2].RegionName()}))
	mc.Shutdown()

	sideline := storage.NewMemFileSystem()
	r := rebuilder(mc)
	r.Sideline = sideline
	r.SidelineDir = "/sideline"
	result, err := r.Rebuild(ctx, true, "t")
	require.NoError(t, err)
	require.True(t, result.Succeeded(), "%+v", result.Tables[0])
	table := result.Tables[0]
	assert.True(t, table.Committed)
	assert.Equal(t, 4, table.Rows)
	assert.NotZero(t, table.Generation)

	rows := catalogRows(t, mc.Catalog, "t")
	require.Len(t, rows, 4)
	var want []string
	for _, d := range regions {
		want = append(want, d.Key().RangeString())
		entry, found := rows[d.RegionName()]
		if assert.True(t, found, d.RegionName()) {
			assert.Equal(t, region.StateUnassigned, entry.State)
			assert.Empty(t, entry.Server)
			assert.Equal(t, table.Generation, entry.Generation)
		}
	}
	sort.Strings(want)
	assert.Equal(t, want, rangesOf(rows))
	assert.Equal(t, otherBefore, catalogRows(t, mc.Catalog, "other"))

	saved, err := fsck.ReadSideline(ctx, sideline, table.Sideline)
	require.NoError(t, err)
	assert.Len(t, saved, 4, "three original rows and the stale one")

	require.NoError(t, mc.Restart(ctx))
	report, reporter := check(t, mc)
	assert.True(t, report.Clean(), "got %v", reporter.Kinds())
}

func TestRebuildIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(1)
	defer mc.Close()
	_, err := mc.CreateTable(ctx, "t", "a", "b", "c")
	require.NoError(t, err)
	mc.Shutdown()

	first, err := rebuilder(mc).Rebuild(ctx, true)
	require.NoError(t, err)
	require.True(t, first.Succeeded())
	firstRanges := rangesOf(catalogRows(t, mc.Catalog, "t"))

	second, err := rebuilder(mc).Rebuild(ctx, true)
	require.NoError(t, err)
	require.True(t, second.Succeeded())
	assert.Equal(t, firstRanges, rangesOf(catalogRows(t, mc.Catalog, "t")))
	assert.Greater(t, second.Tables[0].Generation, first.Tables[0].Generation)
}

func TestRebuildDryRun(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(1)
	defer mc.Close()
	_, err := mc.CreateTable(ctx, "t", "m")
	require.NoError(t, err)
	require.NoError(t, mc.WipeCatalog(ctx))
	mc.Shutdown()

	result, err := rebuilder(mc).Rebuild(ctx, false)
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.False(t, result.Tables[0].Committed)
	assert.Len(t, result.Tables[0].Staged, 2)
	assert.Empty(t, catalogRows(t, mc.Catalog, "t"))
}

func TestNoRebuildOfLiveCluster(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(2)
	defer mc.Close()
	_, err := mc.CreateTable(ctx, "t", "m")
	require.NoError(t, err)
	require.NoError(t, mc.WipeCatalog(ctx))

	result, err := rebuilder(mc).Rebuild(ctx, true)
	assert.Nil(t, result)
	assert.True(t, fsck.IsPrecondition(err), "%v", err)
	assert.Empty(t, catalogRows(t, mc.Catalog, "t"))

	// the coordinator says down but a server still serves regions
	mc.Coordinator.SetActive(false)
	result, err = rebuilder(mc).Rebuild(ctx, true)
	assert.Nil(t, result)
	var precondition *fsck.PreconditionFailure
	require.True(t, errors.As(err, &precondition))
	assert.Contains(t, precondition.Reason, "still open")
	assert.Empty(t, catalogRows(t, mc.Catalog, "t"))

	// every region closed but the servers are still registered
	mc.Shutdown()
	mc.Coordinator.SetServers(mc.ServerNames())
	result, err = rebuilder(mc).Rebuild(ctx, true)
	assert.Nil(t, result)
	require.True(t, errors.As(err, &precondition))
	assert.Contains(t, precondition.Reason, "still registered")
	assert.Empty(t, catalogRows(t, mc.Catalog, "t"))

	// a registered server that does not answer
	mc.Coordinator.SetServers([]string{"127.0.0.1:1"})
	result, err = rebuilder(mc).Rebuild(ctx, true)
	assert.Nil(t, result)
	require.True(t, errors.As(err, &precondition))
	assert.Contains(t, precondition.Reason, "cannot be reached")
	var scanErr *inventory.ScanError
	assert.True(t, errors.As(err, &scanErr))
	assert.Empty(t, catalogRows(t, mc.Catalog, "t"))

	mc.Coordinator.SetServers(nil)
	result, err = rebuilder(mc).Rebuild(ctx, true)
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Len(t, catalogRows(t, mc.Catalog, "t"), 2)
}

func TestValidationFailureOnlyFailsItsTable(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(2)
	defer mc.Close()
	broken, err := mc.CreateTable(ctx, "a", "k1", "k2")
	require.NoError(t, err)
	healthy, err := mc.CreateTable(ctx, "b", "m")
	require.NoError(t, err)
	require.NoError(t, mc.DeleteRegion(ctx, broken[1], true, false, true))
	// rows of b that the rebuild has to replace
	require.NoError(t, mc.Catalog.DeleteEntries(ctx, []string{healthy[0].RegionName()}))
	mc.Shutdown()
	brokenBefore := catalogRows(t, mc.Catalog, "a")
	require.Len(t, brokenBefore, 3)

	result, err := rebuilder(mc).Rebuild(ctx, true)
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	require.Len(t, result.Tables, 2)

	a, b := result.Tables[0], result.Tables[1]
	assert.Equal(t, "a", a.Table)
	assert.Equal(t, fsck.PhaseFailed, a.Phase)
	assert.Equal(t, fsck.PhaseValidate, a.FailedIn)
	var validation *fsck.ValidationFailure
	assert.True(t, errors.As(a.Err, &validation))
	assert.Equal(t, brokenBefore, catalogRows(t, mc.Catalog, "a"))

	assert.Equal(t, "b", b.Table)
	require.True(t, b.Succeeded(), "%+v", b)
	assert.True(t, b.Committed)
	rows := catalogRows(t, mc.Catalog, "b")
	require.Len(t, rows, 2)
	var want []string
	for _, d := range healthy {
		want = append(want, d.Key().RangeString())
		assert.Contains(t, rows, d.RegionName())
	}
	sort.Strings(want)
	assert.Equal(t, want, rangesOf(rows))
}

func TestRebuildRefusesWhileLocked(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(1)
	defer mc.Close()
	_, err := mc.CreateTable(ctx, "t")
	require.NoError(t, err)
	mc.Shutdown()

	unlock, err := mc.Coordinator.Lock(ctx, "someone else")
	require.NoError(t, err)
	_, err = rebuilder(mc).Rebuild(ctx, true)
	assert.True(t, fsck.IsPrecondition(err))
	unlock()

	result, err := rebuilder(mc).Rebuild(ctx, true)
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
}

func TestPartialCommitNeedsOperator(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(1)
	defer mc.Close()
	store := &crashingStore{MemoryStore: memory.NewMemoryStore()}
	mc.Catalog = catalog.NewCatalog(store)
	_, err := mc.CreateTable(ctx, "t", "m")
	require.NoError(t, err)
	stale := region.NewCatalogEntry(&region.Descriptor{Table: "t", StartKey: []byte("x"), RegionId: 1}, "", region.StateOpen, time.Now())
	require.NoError(t, mc.Catalog.PutEntries(ctx, []*region.CatalogEntry{stale}))
	mc.Shutdown()

	store.armed = true
	result, err := rebuilder(mc).Rebuild(ctx, true)
	require.NoError(t, err)
	table := result.Tables[0]
	assert.Equal(t, fsck.PhaseCommit, table.FailedIn)
	var commit *fsck.CommitFailure
	require.True(t, errors.As(table.Err, &commit))
	assert.ErrorIs(t, table.Err, errInjected)
	store.armed = false

	report, reporter := check(t, mc)
	assert.Contains(t, reporter.Kinds(), reconcile.PARTIAL_COMMIT)
	assert.False(t, report.Clean())

	result, err = rebuilder(mc).Rebuild(ctx, true)
	require.NoError(t, err)
	table = result.Tables[0]
	assert.Equal(t, fsck.PhaseValidate, table.FailedIn)
	assert.ErrorIs(t, table.Err, fsck.ErrPartialCommit)

	r := rebuilder(mc)
	r.RetryPartialCommit = true
	result, err = r.Rebuild(ctx, true)
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	markers, err := mc.Catalog.ListMarkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, markers)
	assert.Len(t, catalogRows(t, mc.Catalog, "t"), 2)
}

func TestRebuildTableWithoutRegions(t *testing.T) {
	ctx := context.Background()
	mc := minicluster.Start(0)
	defer mc.Close()
	require.NoError(t, mc.FS.MkdirAll(ctx, storage.TableDir(minicluster.Root, "empty")))

	result := rebuilder(mc).RebuildTable(ctx, "empty", true)
	assert.False(t, result.Succeeded())
	var validation *fsck.ValidationFailure
	assert.True(t, errors.As(result.Err, &validation))
}
