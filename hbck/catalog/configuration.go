package catalog

import (
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/dot2gua/hbase98learning/hbck/util"
)

const (
	ConfigPrefix = "catalog."
)

var (
	Stores []CatalogStore
)

// LoadConfiguration initializes the one catalog store enabled under
// [catalog.<name>] and wraps it.
func LoadConfiguration(config util.Configuration) (*Catalog, error) {

	if err := validateOneEnabledStore(config); err != nil {
		return nil, err
	}

	for _, store := range Stores {
		prefix := ConfigPrefix + store.GetName() + "."
		if config.GetBool(prefix + "enabled") {
			if err := store.Initialize(config, prefix); err != nil {
				return nil, fmt.Errorf("initialize catalog store %s: %w", store.GetName(), err)
			}
			glog.V(0).Infof("Configure catalog for %s", store.GetName())
			return NewCatalog(store), nil
		}
	}

	var names []string
	for _, store := range Stores {
		names = append(names, store.GetName())
	}
	return nil, fmt.Errorf("no catalog store enabled, supported catalog stores are: %s", strings.Join(names, ", "))
}

func validateOneEnabledStore(config util.Configuration) error {
	enabledStore := ""
	for _, store := range Stores {
		if config.GetBool(ConfigPrefix + store.GetName() + ".enabled") {
			if enabledStore == "" {
				enabledStore = store.GetName()
			} else {
				return fmt.Errorf("catalog store is enabled for both %s and %s", enabledStore, store.GetName())
			}
		}
	}
	return nil
}
