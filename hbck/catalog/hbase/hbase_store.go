package hbase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/tsuna/gohbase"
	"github.com/tsuna/gohbase/hrpc"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

const (
	COLUMN_FAMILY = "info"
	COLUMN_NAME   = "catalog"
)

func init() {
	catalog.Stores = append(catalog.Stores, &HbaseStore{})
}

// HbaseStore keeps one catalog row per region in an HBase table, the whole
// encoded entry in the info:catalog cell.
type HbaseStore struct {
	Client gohbase.Client
	table  []byte
}

func (store *HbaseStore) GetName() string {
	return "hbase"
}

func (store *HbaseStore) Initialize(configuration util.Configuration, prefix string) (err error) {
	configuration.SetDefault(prefix+"table", "hbck_catalog")
	return store.initialize(
		configuration.GetString(prefix+"zkquorum"),
		configuration.GetString(prefix+"table"),
	)
}

func (store *HbaseStore) initialize(zkquorum, table string) error {
	store.Client = gohbase.NewClient(zkquorum)
	store.table = []byte(table)

	ctx := context.Background()
	exists, err := store.tableExists(ctx)
	if err != nil || exists {
		return err
	}
	glog.V(0).Infof("create catalog table %s with family %s", table, COLUMN_FAMILY)
	families := map[string]map[string]string{COLUMN_FAMILY: nil}
	return gohbase.NewAdminClient(zkquorum).CreateTable(hrpc.NewCreateTable(ctx, store.table, families))
}

// tableExists reads the marker prefix row, which is never stored, and tells
// a missing table apart from an empty result.
func (store *HbaseStore) tableExists(ctx context.Context) (bool, error) {
	get, err := hrpc.NewGet(ctx, store.table, []byte(catalog.MarkerRowPrefix), hrpc.Families(map[string][]string{COLUMN_FAMILY: nil}))
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", store.table, err)
	}
	switch _, err = store.Client.Get(get); {
	case err == nil:
		return true, nil
	case errors.Is(err, gohbase.TableNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check table %s: %w", store.table, err)
	}
}

func (store *HbaseStore) ListRows(ctx context.Context, prefix string, fn func(row catalog.Row) bool) error {
	family := map[string][]string{COLUMN_FAMILY: {COLUMN_NAME}}
	scan, err := hrpc.NewScanRange(ctx, store.table, []byte(prefix), catalog.PrefixEnd(prefix), hrpc.Families(family))
	if err != nil {
		return err
	}

	scanner := store.Client.Scan(scan)
	defer scanner.Close()
	for {
		res, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if len(res.Cells) == 0 {
			continue
		}
		cell := res.Cells[0]

		if !bytes.HasPrefix(cell.Row, []byte(prefix)) {
			break
		}
		if !fn(catalog.Row{Key: string(cell.Row), Value: cell.Value}) {
			break
		}
	}
	return nil
}

func (store *HbaseStore) PutRows(ctx context.Context, rows []catalog.Row) error {
	for _, row := range rows {
		values := map[string]map[string][]byte{COLUMN_FAMILY: {COLUMN_NAME: row.Value}}
		put, err := hrpc.NewPutStr(ctx, string(store.table), row.Key, values)
		if err != nil {
			return err
		}
		if _, err = store.Client.Put(put); err != nil {
			return fmt.Errorf("hbase put %s: %w", row.Key, err)
		}
	}
	return nil
}

func (store *HbaseStore) DeleteRows(ctx context.Context, keys []string) error {
	for _, key := range keys {
		values := map[string]map[string][]byte{COLUMN_FAMILY: {COLUMN_NAME: nil}}
		del, err := hrpc.NewDelStr(ctx, string(store.table), key, values)
		if err != nil {
			return err
		}
		if _, err = store.Client.Delete(del); err != nil {
			return fmt.Errorf("hbase delete %s: %w", key, err)
		}
	}
	return nil
}

func (store *HbaseStore) Shutdown() {
	if store.Client != nil {
		store.Client.Close()
	}
}
