package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/region"
)

// TestCatalogStore runs the behaviour every catalog store must share against
// an initialized, empty store.
func TestCatalogStore(t *testing.T, store catalog.CatalogStore) {
	ctx := context.Background()

	var rows []catalog.Row
	for i := 0; i < 300; i++ {
		rows = append(rows, catalog.Row{Key: fmt.Sprintf("t1,k%05d,1", i), Value: []byte(fmt.Sprintf("v%d", i))})
	}
	rows = append(rows, catalog.Row{Key: "t2,,1", Value: []byte("t2")})
	require.NoError(t, store.PutRows(ctx, rows), "put rows")

	{
		var keys []string
		err := store.ListRows(ctx, "t1,", func(row catalog.Row) bool {
			keys = append(keys, row.Key)
			return true
		})
		assert.NoError(t, err, "list t1")
		assert.Len(t, keys, 300, "t1 rows")
		assert.IsIncreasing(t, keys, "t1 rows in key order")
	}

	{
		var counter int
		err := store.ListRows(ctx, "", func(row catalog.Row) bool {
			counter++
			return counter < 3
		})
		assert.NoError(t, err, "list all")
		assert.Equal(t, 3, counter, "list stops when fn returns false")
	}

	require.NoError(t, store.PutRows(ctx, []catalog.Row{{Key: "t2,,1", Value: []byte("t2-updated")}}), "overwrite")
	var value []byte
	require.NoError(t, store.ListRows(ctx, "t2,", func(row catalog.Row) bool {
		value = row.Value
		return true
	}))
	assert.Equal(t, []byte("t2-updated"), value, "overwritten value")

	var keys []string
	for _, row := range rows[:300] {
		keys = append(keys, row.Key)
	}
	require.NoError(t, store.DeleteRows(ctx, keys), "delete t1")
	var remaining []string
	require.NoError(t, store.ListRows(ctx, "", func(row catalog.Row) bool {
		remaining = append(remaining, row.Key)
		return true
	}))
	assert.Equal(t, []string{"t2,,1"}, remaining, "rows left after delete")

	testBulkReplaceRows(t, catalog.NewCatalog(store))
}

func testBulkReplaceRows(t *testing.T, c *catalog.Catalog) {
	ctx := context.Background()
	require.NoError(t, c.Truncate(ctx))

	old := SplitTable("t1", 100, "a", "b")
	require.NoError(t, c.PutEntries(ctx, old))

	replacement := SplitTable("t1", 200, "c")
	generation, err := c.BulkReplaceRows(ctx, "t1", replacement)
	require.NoError(t, err, "bulk replace")
	assert.Equal(t, uint64(1), generation)

	var got []string
	require.NoError(t, c.ListRows(ctx, "t1", func(entry *region.CatalogEntry) bool {
		got = append(got, entry.RowKey)
		assert.Equal(t, generation, entry.Generation)
		return true
	}))
	assert.Equal(t, []string{"t1,,200", "t1,c,200"}, got, "rows after replace")

	markers, err := c.ListMarkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, markers, "marker removed after commit")
}

// SplitTable builds the catalog rows of a table split at the given keys.
func SplitTable(table string, regionId int64, splits ...string) (entries []*region.CatalogEntry) {
	start := ""
	for i := 0; i <= len(splits); i++ {
		end := ""
		if i < len(splits) {
			end = splits[i]
		}
		d := &region.Descriptor{Table: table, RegionId: regionId}
		if start != "" {
			d.StartKey = []byte(start)
		}
		if end != "" {
			d.EndKey = []byte(end)
		}
		entries = append(entries, region.NewCatalogEntry(d, "", region.StateUnassigned, time.UnixMilli(regionId)))
		start = end
	}
	return
}
