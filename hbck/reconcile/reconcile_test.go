package reconcile

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot2gua/hbase98learning/hbck/inventory"
	"github.com/dot2gua/hbase98learning/hbck/region"
)

func desc(table, start, end string, id int64) *region.Descriptor {
	d := &region.Descriptor{Table: table, RegionId: id}
	if start != "" {
		d.StartKey = []byte(start)
	}
	if end != "" {
		d.EndKey = []byte(end)
	}
	return d
}

// cluster of table t split at k1,k2,k3, everything consistent and open on rs1
type fixture struct {
	catalog    *inventory.Catalog
	fs         *inventory.Filesystem
	deployment *inventory.Deployment
	regions    []*region.Descriptor
}

func newFixture() *fixture {
	f := &fixture{
		catalog:    inventory.NewCatalog(),
		fs:         inventory.NewFilesystem(),
		deployment: inventory.NewDeployment([]string{"rs1"}),
		regions: []*region.Descriptor{
			desc("t", "", "k1", 1),
			desc("t", "k1", "k2", 1),
			desc("t", "k2", "k3", 1),
			desc("t", "k3", "", 1),
		},
	}
	f.fs.AddTable("t")
	for _, d := range f.regions {
		f.catalog.Add(region.NewCatalogEntry(d, "rs1", region.StateOpen, time.Time{}))
		f.fs.AddRecord(&inventory.FilesystemRecord{Descriptor: d, Path: "/hbase/t/" + d.EncodedName()})
		f.deployment.Add("rs1", d)
	}
	return f
}

func (f *fixture) deleteRegion(d *region.Descriptor) {
	delete(f.catalog.Entries, d.Key())
	delete(f.fs.Records, d.Key())
	delete(f.deployment.Regions, d.Key())
	delete(f.deployment.Descriptors, d.Key())
}

func (f *fixture) reconcile(t *testing.T) (*Report, *CollectingReporter) {
	reporter := NewCollectingReporter()
	report := (&Reconciler{}).Reconcile(f.catalog, f.fs, f.deployment, reporter)
	require.NotNil(t, report)
	return report, reporter
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		evidence Evidence
		kind     ErrorKind
		ok       bool
	}{
		{"consistent", Evidence{InCatalog: true, InFilesystem: true, Live: true, Servers: []string{"rs1"}, CatalogServer: "rs1"}, UNKNOWN, false},
		{"offline cluster", Evidence{InCatalog: true, InFilesystem: true}, UNKNOWN, false},
		{"missing", Evidence{Live: true}, MISSING_EVERYWHERE, true},
		{"catalog only", Evidence{InCatalog: true, Live: true}, NOT_ON_FILESYSTEM, true},
		{"filesystem only", Evidence{InFilesystem: true}, NOT_IN_CATALOG, true},
		{"deployed only", Evidence{Live: true, Servers: []string{"rs1"}}, NOT_IN_CATALOG_OR_FILESYSTEM, true},
		{"not deployed", Evidence{InCatalog: true, InFilesystem: true, Live: true}, NOT_DEPLOYED, true},
		{"offline region", Evidence{InCatalog: true, InFilesystem: true, Live: true, Offline: true}, UNKNOWN, false},
		{"duplicate", Evidence{InCatalog: true, InFilesystem: true, Live: true, Servers: []string{"rs1", "rs2"}}, DUPLICATE_DEPLOYMENT, true},
		{"mismatch", Evidence{InCatalog: true, InFilesystem: true, Live: true, Servers: []string{"rs2"}, CatalogServer: "rs1"}, SERVER_MISMATCH, true},
		{"unassigned row", Evidence{InCatalog: true, InFilesystem: true, Live: true, Servers: []string{"rs2"}}, UNKNOWN, false},
		{"cleaned split parent", Evidence{InCatalog: true, Live: true, SplitParent: true}, UNKNOWN, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := Classify(tt.evidence)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestCheckTiling(t *testing.T) {
	assert.Empty(t, CheckTiling(newFixture().regions))
	assert.Empty(t, CheckTiling([]*region.Descriptor{desc("t", "", "", 1)}))

	holes := CheckTiling([]*region.Descriptor{desc("t", "", "a", 1), desc("t", "b", "", 1)})
	require.Len(t, holes, 1)
	assert.Equal(t, HOLE_IN_KEYSPACE, holes[0].Kind)
	assert.Equal(t, []byte("a"), holes[0].StartKey)
	assert.Equal(t, []byte("b"), holes[0].EndKey)
	assert.Len(t, holes[0].Regions, 2)

	overlaps := CheckTiling([]*region.Descriptor{desc("t", "", "b", 1), desc("t", "a", "", 2)})
	require.Len(t, overlaps, 1)
	assert.Equal(t, OVERLAPPING_REGIONS, overlaps[0].Kind)
	assert.Equal(t, []byte("a"), overlaps[0].StartKey)
	assert.Equal(t, []byte("b"), overlaps[0].EndKey)

	leading := CheckTiling([]*region.Descriptor{desc("t", "a", "", 1)})
	require.Len(t, leading, 1)
	assert.Equal(t, HOLE_IN_KEYSPACE, leading[0].Kind)
	assert.Empty(t, leading[0].StartKey)
	assert.Equal(t, []byte("a"), leading[0].EndKey)

	trailing := CheckTiling([]*region.Descriptor{desc("t", "", "z", 1)})
	require.Len(t, trailing, 1)
	assert.Equal(t, []byte("z"), trailing[0].StartKey)
	assert.Empty(t, trailing[0].EndKey)

	duplicate := CheckTiling([]*region.Descriptor{desc("t", "", "", 1), desc("t", "", "", 2)})
	require.Len(t, duplicate, 1)
	assert.Equal(t, OVERLAPPING_REGIONS, duplicate[0].Kind)
}

func TestCheckTilingSkipsSplitParents(t *testing.T) {
	parent := desc("t", "", "", 1)
	parent.Offline, parent.Split = true, true
	assert.Empty(t, CheckTiling([]*region.Descriptor{parent, desc("t", "", "m", 2), desc("t", "m", "", 2)}))
}

func TestCheckTilingGroupsByTableAndReplica(t *testing.T) {
	replica := desc("t", "", "m", 1)
	replica.ReplicaId = 1
	violations := CheckTiling([]*region.Descriptor{
		desc("t", "", "", 1),
		desc("u", "", "", 1),
		replica,
	})
	require.Len(t, violations, 1)
	assert.Equal(t, "t", violations[0].Table)
	assert.Equal(t, int32(1), violations[0].ReplicaId)
}

func TestMissingRanges(t *testing.T) {
	k := func(s string) []byte { return []byte(s) }
	assert.Equal(t, [][2][]byte{{k("k1"), k("k2")}}, MissingRanges(k("k1"), k("k2"), nil))
	assert.Equal(t, [][2][]byte{{k("k15"), k("k2")}}, MissingRanges(k("k1"), k("k2"), []*region.Descriptor{desc("t", "k1", "k15", 1)}))
	assert.Empty(t, MissingRanges(k("k3"), nil, []*region.Descriptor{desc("t", "k3", "", 1)}))
	assert.Equal(t, [][2][]byte{{nil, k("a")}}, MissingRanges(nil, k("b"), []*region.Descriptor{desc("t", "a", "b", 1)}))
	assert.Empty(t, MissingRanges(k("b"), k("c"), []*region.Descriptor{desc("t", "", "a", 1), desc("t", "a", "", 1)}))
}

func TestReconcileConsistent(t *testing.T) {
	report, reporter := newFixture().reconcile(t)
	assert.Empty(t, report.Inconsistencies)
	assert.Empty(t, reporter.Errors())
	assert.True(t, report.Clean())
	require.Contains(t, report.Tables, "t")
	assert.True(t, report.Tables["t"].Rebuildable)
	assert.Equal(t, 4, report.Tables["t"].Regions)
}

func TestReconcileRegionMissingEverywhere(t *testing.T) {
	f := newFixture()
	f.deleteRegion(f.regions[1])

	report, reporter := f.reconcile(t)
	assert.True(t, Matches(reporter, MISSING_EVERYWHERE))
	require.Len(t, report.Inconsistencies, 1)
	assert.Equal(t, "k1", report.Inconsistencies[0].Key.StartKey)
	assert.Equal(t, "k2", report.Inconsistencies[0].Key.EndKey)
	assert.False(t, report.Tables["t"].Rebuildable)
	require.Len(t, report.Tables["t"].Tiling, 1)
	assert.Equal(t, HOLE_IN_KEYSPACE, report.Tables["t"].Tiling[0].Kind)
	assert.Equal(t, 1, report.Tables["t"].Irrecoverable)

	// with the catalog gone the remaining regions are only on disk
	f.catalog = inventory.NewCatalog()
	report, reporter = f.reconcile(t)
	assert.True(t, Matches(reporter, NOT_IN_CATALOG, NOT_IN_CATALOG, NOT_IN_CATALOG))
	assert.Zero(t, report.Tables["t"].Irrecoverable)

	// the same holds with the cluster down
	f.deployment = inventory.Absent()
	_, reporter = f.reconcile(t)
	assert.True(t, Matches(reporter, NOT_IN_CATALOG, NOT_IN_CATALOG, NOT_IN_CATALOG))
}

func TestReconcileGapCoveredByDirectory(t *testing.T) {
	f := newFixture()
	delete(f.catalog.Entries, f.regions[1].Key())

	report, reporter := f.reconcile(t)
	assert.True(t, Matches(reporter, NOT_IN_CATALOG))
	assert.Equal(t, f.regions[1].Key(), report.Inconsistencies[0].Key)
	assert.True(t, report.Tables["t"].Rebuildable)
}

func TestReconcileDeploymentKinds(t *testing.T) {
	f := newFixture()
	f.deployment = inventory.NewDeployment([]string{"rs1", "rs2"})
	f.deployment.Add("rs1", f.regions[0])
	f.deployment.Add("rs1", f.regions[1])
	f.deployment.Add("rs2", f.regions[1])
	f.deployment.Add("rs2", f.regions[2])
	// regions[3] is open nowhere
	stray := desc("t", "x", "y", 9)
	f.deployment.Add("rs2", stray)
	ghost := desc("t", "k3", "", 7)
	f.catalog.Add(region.NewCatalogEntry(ghost, "", region.StateUnassigned, time.Time{}))

	report, reporter := f.reconcile(t)
	assert.True(t, Matches(reporter, DUPLICATE_DEPLOYMENT, SERVER_MISMATCH, NOT_DEPLOYED, NOT_IN_CATALOG_OR_FILESYSTEM, NOT_ON_FILESYSTEM),
		"got %v", reporter.Kinds())
	counts := report.CountByKind()
	assert.Equal(t, 1, counts[DUPLICATE_DEPLOYMENT])
	assert.True(t, report.DeploymentKnown)
	assert.Equal(t, 1, report.Tables["t"].Irrecoverable, "only the stray region has no durable record")
	for _, i := range report.Inconsistencies {
		if i.Kind == SERVER_MISMATCH {
			assert.Equal(t, []string{"rs2"}, i.Evidence.Servers)
			assert.Contains(t, i.String(), "on rs2")
		}
	}

	// sorted by region key
	for n := 1; n < len(report.Inconsistencies); n++ {
		assert.False(t, report.Inconsistencies[n].less(report.Inconsistencies[n-1]))
	}
}

func TestReconcileOfflineCluster(t *testing.T) {
	f := newFixture()
	f.deployment = inventory.Absent()
	report, reporter := f.reconcile(t)
	assert.Empty(t, reporter.Errors())
	assert.False(t, report.DeploymentKnown)
}

func TestReconcileUnparsedAndFailed(t *testing.T) {
	f := newFixture()
	f.catalog.Add(&region.CatalogEntry{RowKey: "t,garbage,1", DecodeErr: region.ErrMalformedEntry})
	f.fs.AddDegenerate(inventory.DegenerateDir{Table: "t", Path: "/hbase/t/abc", Reason: "missing .regioninfo"})
	f.fs.AddScanError(&inventory.ScanError{Source: inventory.SourceFilesystem, Table: "t", Unit: "/hbase/t/def", Attempts: 3, Err: errors.New("io")})
	f.deployment.AddScanError(&inventory.ScanError{Source: inventory.SourceCluster, Unit: "rs9", Attempts: 3, Err: errors.New("refused")})
	f.catalog.PendingCommits["t"] = 4

	report, reporter := f.reconcile(t)
	assert.True(t, Matches(reporter, BAD_DESCRIPTOR, DEGENERATE_REGION_DIR, SCAN_FAILURE, SCAN_FAILURE, PARTIAL_COMMIT), "got %v", reporter.Kinds())
	assert.False(t, report.Tables["t"].Rebuildable)
	assert.Empty(t, report.Tables["t"].Tiling)
}

func TestReconcileTableFilter(t *testing.T) {
	f := newFixture()
	other := desc("u", "", "", 3)
	f.fs.AddTable("u")
	f.fs.AddRecord(&inventory.FilesystemRecord{Descriptor: other})

	reporter := NewCollectingReporter()
	report := (&Reconciler{Tables: []string{"t"}}).Reconcile(f.catalog, f.fs, f.deployment, reporter)
	assert.Empty(t, reporter.Errors())
	assert.Equal(t, []string{"t"}, report.TableNames())

	report = (&Reconciler{}).Reconcile(f.catalog, f.fs, f.deployment, nil)
	assert.Equal(t, []string{"t", "u"}, report.TableNames())
	assert.Equal(t, 1, report.CountByKind()[NOT_IN_CATALOG])
}

func TestTableMissingFromFilesystem(t *testing.T) {
	f := newFixture()
	f.fs = inventory.NewFilesystem()
	report, _ := f.reconcile(t)
	require.Len(t, report.Tables["t"].Tiling, 1)
	assert.False(t, report.Tables["t"].Rebuildable)
	assert.Equal(t, 4, report.CountByKind()[NOT_ON_FILESYSTEM])
}

func TestReporterConcurrentAppend(t *testing.T) {
	reporter := NewCollectingReporter()
	var wg sync.WaitGroup
	for n := 0; n < 16; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reporter.Report(&Inconsistency{Kind: NOT_DEPLOYED})
		}()
	}
	wg.Wait()
	assert.Len(t, reporter.Errors(), 16)
	reporter.Clear()
	assert.True(t, Matches(reporter))
	assert.False(t, Matches(reporter, NOT_DEPLOYED))
}

func TestPrintingReporter(t *testing.T) {
	var out bytes.Buffer
	reporter := NewPrintingReporter(&out, true)
	reporter.Report(&Inconsistency{Kind: BAD_DESCRIPTOR, Key: region.Key{Table: "t"}, Unit: "t,x,1", Detail: "malformed"})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ERROR: BAD_DESCRIPTOR t t,x,1", lines[0])
	assert.Equal(t, "\tmalformed", lines[1])
	assert.True(t, Matches(reporter, BAD_DESCRIPTOR))
}

func TestErrorKindText(t *testing.T) {
	text, err := SERVER_MISMATCH.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "SERVER_MISMATCH", string(text))

	var kind ErrorKind
	require.NoError(t, kind.UnmarshalText([]byte("PARTIAL_COMMIT")))
	assert.Equal(t, PARTIAL_COMMIT, kind)
	assert.Error(t, kind.UnmarshalText([]byte("NOPE")))
	assert.Equal(t, "ErrorKind(99)", ErrorKind(99).String())
	assert.True(t, MISSING_EVERYWHERE.Irrecoverable())
}
