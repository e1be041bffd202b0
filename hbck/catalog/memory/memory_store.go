package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/btree"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

func init() {
	catalog.Stores = append(catalog.Stores, &MemoryStore{})
}

// MemoryStore keeps the catalog in an ordered in-process tree. It backs the
// mini cluster and tests.
type MemoryStore struct {
	tree *btree.BTreeG[catalog.Row]
	mu   sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{}
	store.initialize()
	return store
}

func rowLess(a, b catalog.Row) bool {
	return a.Key < b.Key
}

func (store *MemoryStore) GetName() string {
	return "memory"
}

func (store *MemoryStore) Initialize(configuration util.Configuration, prefix string) (err error) {
	store.initialize()
	return nil
}

func (store *MemoryStore) initialize() {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.tree = btree.NewG[catalog.Row](8, rowLess)
}

func (store *MemoryStore) ListRows(ctx context.Context, prefix string, fn func(row catalog.Row) bool) error {
	if store.tree == nil {
		return catalog.ErrStoreNotInitialized
	}
	store.mu.RLock()
	var rows []catalog.Row
	store.tree.AscendGreaterOrEqual(catalog.Row{Key: prefix}, func(row catalog.Row) bool {
		if !strings.HasPrefix(row.Key, prefix) {
			return false
		}
		rows = append(rows, catalog.Row{Key: row.Key, Value: append([]byte{}, row.Value...)})
		return true
	})
	store.mu.RUnlock()

	// fn may write back to the store
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(row) {
			break
		}
	}
	return nil
}

func (store *MemoryStore) PutRows(ctx context.Context, rows []catalog.Row) error {
	if store.tree == nil {
		return catalog.ErrStoreNotInitialized
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, row := range rows {
		store.tree.ReplaceOrInsert(catalog.Row{Key: row.Key, Value: append([]byte{}, row.Value...)})
	}
	return nil
}

func (store *MemoryStore) DeleteRows(ctx context.Context, keys []string) error {
	if store.tree == nil {
		return catalog.ErrStoreNotInitialized
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, key := range keys {
		store.tree.Delete(catalog.Row{Key: key})
	}
	return nil
}

func (store *MemoryStore) Shutdown() {
}
