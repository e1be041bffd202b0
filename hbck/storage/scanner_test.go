package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot2gua/hbase98learning/hbck/inventory"
	"github.com/dot2gua/hbase98learning/hbck/region"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

const testRoot = "/hbase"

func init() {
	util.RetryInitialInterval = time.Millisecond
	util.RetryMaxInterval = 2 * time.Millisecond
}

func splitTable(table string, splits ...string) (descriptors []*region.Descriptor) {
	var start []byte
	for i := 0; i <= len(splits); i++ {
		var end []byte
		if i < len(splits) {
			end = []byte(splits[i])
		}
		descriptors = append(descriptors, &region.Descriptor{Table: table, StartKey: start, EndKey: end, RegionId: 1})
		start = end
	}
	return
}

func createTable(t *testing.T, fsys FileSystem, descriptors []*region.Descriptor) {
	for _, d := range descriptors {
		_, err := CreateRegionDir(context.Background(), fsys, testRoot, d, "cf")
		require.NoError(t, err)
	}
}

// flakyFileSystem fails reads under matching paths a number of times.
type flakyFileSystem struct {
	FileSystem
	sync.Mutex
	match    string
	failures int
	hang     bool
}

func (fs *flakyFileSystem) fail(p string) error {
	if !strings.Contains(p, fs.match) {
		return nil
	}
	if fs.hang {
		time.Sleep(time.Second)
		return nil
	}
	fs.Lock()
	defer fs.Unlock()
	if fs.failures == 0 {
		return nil
	}
	fs.failures--
	return errors.New("i/o error on " + p)
}

func (fs *flakyFileSystem) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := fs.fail(p); err != nil {
		return nil, err
	}
	return fs.FileSystem.ReadFile(ctx, p)
}

func TestScanTable(t *testing.T) {
	fsys := NewMemFileSystem()
	descriptors := splitTable("t1", "k1", "k2", "k3")
	createTable(t, fsys, descriptors)
	createTable(t, fsys, splitTable("t2"))
	require.NoError(t, fsys.MkdirAll(context.Background(), path.Join(testRoot, "t1", ".tmp")))

	scanner := &Scanner{FS: fsys, Root: testRoot, Workers: 2, Retries: 3, Timeout: time.Second}
	result, err := scanner.ScanTable(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, []string{"t1"}, result.Tables)
	assert.Empty(t, result.Degenerate)
	assert.Empty(t, result.ScanErrors)
	assert.Equal(t, descriptors, result.Descriptors("t1"))
	for _, record := range result.Records {
		assert.Equal(t, []string{"cf"}, record.Families)
		assert.Equal(t, RegionDir(testRoot, record.Descriptor), record.Path)
	}
}

func TestScanAll(t *testing.T) {
	fsys := NewMemFileSystem()
	createTable(t, fsys, splitTable("t1", "k1"))
	createTable(t, fsys, splitTable("t2"))
	require.NoError(t, fsys.MkdirAll(context.Background(), path.Join(testRoot, ".hbck")))

	scanner := &Scanner{FS: fsys, Root: testRoot, Workers: 4, Retries: 1}
	result, err := scanner.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, result.Tables)
	assert.Len(t, result.Records, 3)

	empty, err := (&Scanner{FS: NewMemFileSystem(), Root: "/nowhere", Retries: 1}).ScanAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty.Records)
}

func TestScanDegenerateRegionDirs(t *testing.T) {
	ctx := context.Background()
	fsys := NewMemFileSystem()
	createTable(t, fsys, splitTable("t1", "k1"))

	require.NoError(t, fsys.MkdirAll(ctx, path.Join(testRoot, "t1", "emptydir")))
	require.NoError(t, fsys.MkdirAll(ctx, path.Join(testRoot, "t1", "garbled")))
	require.NoError(t, fsys.WriteFile(ctx, path.Join(testRoot, "t1", "garbled", RegionInfoFile), []byte("PBUF\xff")))
	foreign := &region.Descriptor{Table: "t9", RegionId: 1}
	require.NoError(t, fsys.MkdirAll(ctx, path.Join(testRoot, "t1", foreign.EncodedName())))
	require.NoError(t, fsys.WriteFile(ctx, path.Join(testRoot, "t1", foreign.EncodedName(), RegionInfoFile), foreign.Marshal()))

	result, err := (&Scanner{FS: fsys, Root: testRoot, Workers: 2, Retries: 3}).ScanTable(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Empty(t, result.ScanErrors)
	require.Len(t, result.Degenerate, 3)

	reasons := map[string]string{}
	for _, dir := range result.Degenerate {
		reasons[path.Base(dir.Path)] = dir.Reason
	}
	assert.Equal(t, "no .regioninfo", reasons["emptydir"])
	assert.Contains(t, reasons["garbled"], region.ErrMalformedDescriptor.Error())
	assert.Contains(t, reasons[foreign.EncodedName()], "belongs to table t9")
}

func TestScanRetriesTransientFailures(t *testing.T) {
	mem := NewMemFileSystem()
	descriptors := splitTable("t1", "k1", "k2")
	createTable(t, mem, descriptors)

	fsys := &flakyFileSystem{FileSystem: mem, match: descriptors[1].EncodedName(), failures: 2}
	result, err := (&Scanner{FS: fsys, Root: testRoot, Workers: 2, Retries: 3}).ScanTable(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, result.Records, 3)
	assert.Empty(t, result.ScanErrors)
}

func TestScanErrorIsPerRegion(t *testing.T) {
	mem := NewMemFileSystem()
	descriptors := splitTable("t1", "k1", "k2")
	createTable(t, mem, descriptors)

	fsys := &flakyFileSystem{FileSystem: mem, match: descriptors[1].EncodedName(), failures: 100}
	result, err := (&Scanner{FS: fsys, Root: testRoot, Workers: 2, Retries: 3}).ScanTable(context.Background(), "t1")
	require.NoError(t, err)

	assert.Len(t, result.Records, 2, "siblings are still scanned")
	require.Len(t, result.ScanErrors, 1)
	scanErr := result.ScanErrors[0]
	assert.Equal(t, inventory.SourceFilesystem, scanErr.Source)
	assert.Equal(t, "t1", scanErr.Table)
	assert.Equal(t, RegionDir(testRoot, descriptors[1]), scanErr.Unit)
	assert.Equal(t, 3, scanErr.Attempts)
	assert.Len(t, result.TableScanErrors("t1"), 1)
}

func TestScanTimeout(t *testing.T) {
	mem := NewMemFileSystem()
	descriptors := splitTable("t1", "k1")
	createTable(t, mem, descriptors)

	fsys := &flakyFileSystem{FileSystem: mem, match: descriptors[0].EncodedName(), hang: true}
	result, err := (&Scanner{FS: fsys, Root: testRoot, Workers: 2, Retries: 1, Timeout: 20 * time.Millisecond}).ScanTable(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
	require.Len(t, result.ScanErrors, 1)
	assert.ErrorIs(t, result.ScanErrors[0], context.DeadlineExceeded)
}

func TestReadDescriptor(t *testing.T) {
	ctx := context.Background()
	fsys := NewMemFileSystem()
	d := &region.Descriptor{Table: "t1", StartKey: []byte("a"), RegionId: 3}
	dir, err := CreateRegionDir(ctx, fsys, testRoot, d)
	require.NoError(t, err)

	read, err := ReadDescriptor(ctx, fsys, dir)
	require.NoError(t, err)
	assert.Equal(t, d, read)

	_, err = ReadDescriptor(ctx, fsys, path.Join(testRoot, "t1", "missing"))
	assert.ErrorIs(t, err, ErrDescriptorNotFound)

	require.NoError(t, DeleteRegionDir(ctx, fsys, testRoot, d))
	_, err = ReadDescriptor(ctx, fsys, dir)
	assert.ErrorIs(t, err, ErrDescriptorNotFound)
}
