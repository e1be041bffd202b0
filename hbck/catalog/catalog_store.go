package catalog

import (
	"context"
	"errors"

	"github.com/dot2gua/hbase98learning/hbck/util"
)

var (
	ErrStoreNotInitialized = errors.New("catalog store not initialized")
)

// Row is one raw catalog row. Key is the region name, Value the encoded
// region.CatalogEntry.
type Row struct {
	Key   string
	Value []byte
}

type CatalogStore interface {
	// GetName gets the name to locate the configuration in hbck.toml file
	GetName() string
	// Initialize initializes the catalog store
	Initialize(configuration util.Configuration, prefix string) error
	// ListRows visits rows whose key starts with prefix in key order until fn returns false.
	ListRows(ctx context.Context, prefix string, fn func(row Row) bool) error
	PutRows(ctx context.Context, rows []Row) error
	DeleteRows(ctx context.Context, keys []string) error
	Shutdown()
}

// PrefixEnd is the smallest key greater than every key starting with prefix,
// or nil when there is none.
func PrefixEnd(prefix string) []byte {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
