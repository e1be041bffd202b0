//go:build linux || darwin || windows

package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dot2gua/hbase98learning/hbck/catalog/store_test"
)

func TestStore(t *testing.T) {
	store := &SqliteStore{}
	require.NoError(t, store.initialize(filepath.Join(t.TempDir(), "catalog.db")))
	defer store.Shutdown()
	store_test.TestCatalogStore(t, store)
}
