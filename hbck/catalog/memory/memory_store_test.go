package memory

import (
	"testing"

	"github.com/dot2gua/hbase98learning/hbck/catalog/store_test"
)

func TestStore(t *testing.T) {
	store_test.TestCatalogStore(t, NewMemoryStore())
}
