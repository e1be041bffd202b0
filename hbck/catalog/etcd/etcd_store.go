package etcd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

const (
	// etcd rejects transactions with more operations than --max-txn-ops, 128 by default
	maxTxnOps = 128
)

func init() {
	catalog.Stores = append(catalog.Stores, &EtcdStore{})
}

type EtcdStore struct {
	client    *clientv3.Client
	keyPrefix string
	timeout   time.Duration
}

func (store *EtcdStore) GetName() string {
	return "etcd"
}

func (store *EtcdStore) Initialize(configuration util.Configuration, prefix string) (err error) {
	servers := configuration.GetString(prefix + "servers")
	if servers == "" {
		servers = "localhost:2379"
	}

	keyPrefix := configuration.GetString(prefix + "key_prefix")
	if keyPrefix == "" {
		keyPrefix = "/hbck/catalog/"
	}

	return store.initialize(servers, keyPrefix, util.GetDuration(configuration, prefix+"timeout", 3*time.Second))
}

func (store *EtcdStore) initialize(servers string, keyPrefix string, timeout time.Duration) (err error) {
	glog.V(0).Infof("catalog store etcd: %s%s", servers, keyPrefix)

	store.keyPrefix = keyPrefix
	store.timeout = timeout
	store.client, err = clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(servers, ","),
		DialTimeout: timeout,
	})
	if err != nil {
		return fmt.Errorf("connect to etcd %s: %w", servers, err)
	}

	return
}

func (store *EtcdStore) ListRows(ctx context.Context, prefix string, fn func(row catalog.Row) bool) error {
	resp, err := store.client.Get(ctx, store.keyPrefix+prefix,
		clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}

	for _, kv := range resp.Kvs {
		row := catalog.Row{
			Key:   strings.TrimPrefix(string(kv.Key), store.keyPrefix),
			Value: kv.Value,
		}
		if !fn(row) {
			break
		}
	}
	return nil
}

func (store *EtcdStore) PutRows(ctx context.Context, rows []catalog.Row) error {
	var ops []clientv3.Op
	for _, row := range rows {
		ops = append(ops, clientv3.OpPut(store.keyPrefix+row.Key, string(row.Value)))
	}
	return store.commit(ctx, ops)
}

func (store *EtcdStore) DeleteRows(ctx context.Context, keys []string) error {
	var ops []clientv3.Op
	for _, key := range keys {
		ops = append(ops, clientv3.OpDelete(store.keyPrefix+key))
	}
	return store.commit(ctx, ops)
}

// commit applies ops in transactions of at most maxTxnOps operations.
func (store *EtcdStore) commit(ctx context.Context, ops []clientv3.Op) error {
	for len(ops) > 0 {
		n := min(len(ops), maxTxnOps)
		txnCtx, cancel := context.WithTimeout(ctx, store.timeout)
		_, err := store.client.Txn(txnCtx).Then(ops[:n]...).Commit()
		cancel()
		if err != nil {
			return fmt.Errorf("etcd txn of %d ops: %w", n, err)
		}
		ops = ops[n:]
	}
	return nil
}

func (store *EtcdStore) Shutdown() {
	if store.client != nil {
		store.client.Close()
	}
}
