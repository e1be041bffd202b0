package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

func init() {
	catalog.Stores = append(catalog.Stores, &RedisStore{})
}

// RedisStore keeps all catalog rows as fields of a single redis hash, so a
// batch of writes lands in one MULTI/EXEC.
type RedisStore struct {
	Client  redis.UniversalClient
	hashKey string
}

func (store *RedisStore) GetName() string {
	return "redis"
}

func (store *RedisStore) Initialize(configuration util.Configuration, prefix string) (err error) {
	configuration.SetDefault(prefix+"address", "localhost:6379")
	configuration.SetDefault(prefix+"hash_key", "hbck:catalog")
	return store.initialize(
		configuration.GetStringSlice(prefix+"address"),
		configuration.GetString(prefix+"password"),
		configuration.GetInt(prefix+"database"),
		configuration.GetString(prefix+"hash_key"),
	)
}

func (store *RedisStore) initialize(addresses []string, password string, database int, hashKey string) (err error) {
	glog.V(0).Infof("catalog store redis: %v %s", addresses, hashKey)
	store.Client = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addresses,
		Password: password,
		DB:       database,
	})
	store.hashKey = hashKey
	return store.Client.Ping(context.Background()).Err()
}

func (store *RedisStore) ListRows(ctx context.Context, prefix string, fn func(row catalog.Row) bool) error {
	all, err := store.Client.HGetAll(ctx, store.hashKey).Result()
	if err != nil {
		return fmt.Errorf("hgetall %s: %w", store.hashKey, err)
	}

	keys := make([]string, 0, len(all))
	for key := range all {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !fn(catalog.Row{Key: key, Value: []byte(all[key])}) {
			break
		}
	}
	return nil
}

func (store *RedisStore) PutRows(ctx context.Context, rows []catalog.Row) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := store.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, row := range rows {
			pipe.HSet(ctx, store.hashKey, row.Key, row.Value)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %d rows: %w", len(rows), err)
	}
	return nil
}

func (store *RedisStore) DeleteRows(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := store.Client.HDel(ctx, store.hashKey, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete %d rows: %w", len(keys), err)
	}
	return nil
}

func (store *RedisStore) Shutdown() {
	if store.Client != nil {
		store.Client.Close()
	}
}
