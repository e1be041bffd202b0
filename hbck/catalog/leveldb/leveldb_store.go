package leveldb

import (
	"context"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/syndtr/goleveldb/leveldb"
	leveldb_errors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	leveldb_util "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

func init() {
	catalog.Stores = append(catalog.Stores, &LevelDBStore{})
}

// LevelDBStore keeps the catalog in a local leveldb directory, for offline
// copies of the catalog.
type LevelDBStore struct {
	dir string
	db  *leveldb.DB
}

func (store *LevelDBStore) GetName() string {
	return "leveldb"
}

func (store *LevelDBStore) Initialize(configuration util.Configuration, prefix string) (err error) {
	dir := util.ResolvePath(configuration.GetString(prefix + "dir"))
	return store.initialize(dir)
}

func (store *LevelDBStore) initialize(dir string) (err error) {
	glog.V(0).Infof("catalog store leveldb dir: %s", dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create leveldb dir %s: %w", dir, err)
	}
	store.dir = dir

	opts := &opt.Options{
		BlockCacheCapacity: 8 * 1024 * 1024,
		WriteBuffer:        4 * 1024 * 1024,
		Filter:             filter.NewBloomFilter(8), // false positive rate 0.02
	}

	db, dbErr := leveldb.OpenFile(dir, opts)
	if leveldb_errors.IsCorrupted(dbErr) {
		db, dbErr = leveldb.RecoverFile(dir, opts)
	}
	if dbErr != nil {
		glog.Errorf("catalog store open dir %s: %v", dir, dbErr)
		return dbErr
	}
	store.db = db
	return nil
}

func (store *LevelDBStore) ListRows(ctx context.Context, prefix string, fn func(row catalog.Row) bool) error {
	if store.db == nil {
		return catalog.ErrStoreNotInitialized
	}
	iter := store.db.NewIterator(leveldb_util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := catalog.Row{
			Key:   string(iter.Key()),
			Value: append([]byte{}, iter.Value()...),
		}
		if !fn(row) {
			break
		}
	}
	return iter.Error()
}

func (store *LevelDBStore) PutRows(ctx context.Context, rows []catalog.Row) error {
	if store.db == nil {
		return catalog.ErrStoreNotInitialized
	}
	batch := new(leveldb.Batch)
	for _, row := range rows {
		batch.Put([]byte(row.Key), row.Value)
	}
	if err := store.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("leveldb put %d rows: %w", len(rows), err)
	}
	return nil
}

func (store *LevelDBStore) DeleteRows(ctx context.Context, keys []string) error {
	if store.db == nil {
		return catalog.ErrStoreNotInitialized
	}
	batch := new(leveldb.Batch)
	for _, key := range keys {
		batch.Delete([]byte(key))
	}
	if err := store.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("leveldb delete %d rows: %w", len(keys), err)
	}
	return nil
}

func (store *LevelDBStore) Shutdown() {
	if store.db != nil {
		store.db.Close()
	}
}
