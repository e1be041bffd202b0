package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/dot2gua/hbase98learning/hbck/region"
	"github.com/dot2gua/hbase98learning/hbck/stats"
)

const (
	// MarkerRowPrefix starts the key of a rebuild commit marker. '#' is not
	// legal in a table name, so marker rows never collide with region rows.
	MarkerRowPrefix = "#rebuild#"

	writeBatchSize = 256
)

// Catalog wraps a CatalogStore with region row encoding and metrics.
type Catalog struct {
	ActualStore CatalogStore
}

func NewCatalog(store CatalogStore) *Catalog {
	return &Catalog{
		ActualStore: store,
	}
}

func (c *Catalog) GetName() string {
	return c.ActualStore.GetName()
}

func (c *Catalog) Shutdown() {
	c.ActualStore.Shutdown()
}

func TablePrefix(table string) string {
	return table + ","
}

func MarkerRowKey(table string) string {
	return MarkerRowPrefix + table
}

func (c *Catalog) observe(op string) func() {
	stats.CatalogStoreCounter.WithLabelValues(c.ActualStore.GetName(), op).Inc()
	start := time.Now()
	return func() {
		stats.CatalogStoreHistogram.WithLabelValues(c.ActualStore.GetName(), op).Observe(time.Since(start).Seconds())
	}
}

func (c *Catalog) listRaw(ctx context.Context, prefix string, fn func(row Row) bool) error {
	defer c.observe("list")()
	return c.ActualStore.ListRows(ctx, prefix, fn)
}

func (c *Catalog) putRaw(ctx context.Context, rows []Row) error {
	defer c.observe("put")()
	for len(rows) > 0 {
		n := min(len(rows), writeBatchSize)
		if err := c.ActualStore.PutRows(ctx, rows[:n]); err != nil {
			return err
		}
		rows = rows[n:]
	}
	return nil
}

func (c *Catalog) deleteRaw(ctx context.Context, keys []string) error {
	defer c.observe("delete")()
	for len(keys) > 0 {
		n := min(len(keys), writeBatchSize)
		if err := c.ActualStore.DeleteRows(ctx, keys[:n]); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}

// ListRows visits region rows of one table, or of every table when
// tableFilter is empty. Rows that do not decode are passed with DecodeErr
// set. Commit markers are skipped.
func (c *Catalog) ListRows(ctx context.Context, tableFilter string, fn func(entry *region.CatalogEntry) bool) error {
	prefix := ""
	if tableFilter != "" {
		prefix = TablePrefix(tableFilter)
	}
	return c.listRaw(ctx, prefix, func(row Row) bool {
		if strings.HasPrefix(row.Key, MarkerRowPrefix) {
			return true
		}
		return fn(decodeRow(row))
	})
}

// ListMarkers returns the generation of every unfinished commit by table.
func (c *Catalog) ListMarkers(ctx context.Context) (map[string]uint64, error) {
	markers := make(map[string]uint64)
	err := c.listRaw(ctx, MarkerRowPrefix, func(row Row) bool {
		markers[strings.TrimPrefix(row.Key, MarkerRowPrefix)] = decodeRow(row).Generation
		return true
	})
	return markers, err
}

func decodeRow(row Row) *region.CatalogEntry {
	entry, err := region.DecodeCatalogEntry(row.Key, row.Value)
	if err != nil {
		return &region.CatalogEntry{RowKey: row.Key, DecodeErr: err}
	}
	return entry
}

// PutEntries writes rows as they are, keeping their generation.
func (c *Catalog) PutEntries(ctx context.Context, entries []*region.CatalogEntry) error {
	rows := make([]Row, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, Row{Key: entry.RowKey, Value: entry.EncodeValue()})
	}
	return c.putRaw(ctx, rows)
}

func (c *Catalog) DeleteEntries(ctx context.Context, rowKeys []string) error {
	return c.deleteRaw(ctx, rowKeys)
}

// Truncate removes every row, markers included.
func (c *Catalog) Truncate(ctx context.Context) error {
	var keys []string
	if err := c.listRaw(ctx, "", func(row Row) bool {
		keys = append(keys, row.Key)
		return true
	}); err != nil {
		return err
	}
	return c.deleteRaw(ctx, keys)
}

// BulkReplaceRows makes entries the only rows of table.
//
// A marker row carrying a fresh generation G is written first, then every
// new row with generation G, then every row of the table with another
// generation is deleted, and the marker goes last. A crash at any point
// leaves the marker behind, which the next catalog scan reports. Running the
// replace again with the same entries converges to the same rows.
func (c *Catalog) BulkReplaceRows(ctx context.Context, table string, entries []*region.CatalogEntry) (generation uint64, err error) {
	prefix := TablePrefix(table)
	for _, entry := range entries {
		if !strings.HasPrefix(entry.RowKey, prefix) {
			return 0, fmt.Errorf("row %s does not belong to table %s", entry.RowKey, table)
		}
	}

	var maxGeneration uint64
	if err = c.listRaw(ctx, prefix, func(row Row) bool {
		maxGeneration = max(maxGeneration, decodeRow(row).Generation)
		return true
	}); err != nil {
		return 0, fmt.Errorf("list %s rows: %w", table, err)
	}
	markers, err := c.ListMarkers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list commit markers: %w", err)
	}
	generation = max(maxGeneration, markers[table]) + 1

	marker := &region.CatalogEntry{RowKey: MarkerRowKey(table), Generation: generation, UpdatedAt: time.Now()}
	if err = c.putRaw(ctx, []Row{{Key: marker.RowKey, Value: marker.EncodeValue()}}); err != nil {
		return generation, fmt.Errorf("write commit marker %s: %w", marker.RowKey, err)
	}
	glog.V(1).Infof("replace %s rows with %d rows at generation %d", table, len(entries), generation)

	rows := make([]Row, 0, len(entries))
	for _, entry := range entries {
		staged := *entry
		staged.Generation = generation
		rows = append(rows, Row{Key: staged.RowKey, Value: staged.EncodeValue()})
	}
	if err = c.putRaw(ctx, rows); err != nil {
		return generation, fmt.Errorf("write %s rows at generation %d: %w", table, generation, err)
	}

	var stale []string
	if err = c.listRaw(ctx, prefix, func(row Row) bool {
		if decodeRow(row).Generation != generation {
			stale = append(stale, row.Key)
		}
		return true
	}); err != nil {
		return generation, fmt.Errorf("list stale %s rows: %w", table, err)
	}
	if err = c.deleteRaw(ctx, stale); err != nil {
		return generation, fmt.Errorf("delete %d stale %s rows: %w", len(stale), table, err)
	}

	if err = c.deleteRaw(ctx, []string{marker.RowKey}); err != nil {
		return generation, fmt.Errorf("delete commit marker %s: %w", marker.RowKey, err)
	}
	return generation, nil
}
