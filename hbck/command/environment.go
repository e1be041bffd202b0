package command

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/cluster"
	"github.com/dot2gua/hbase98learning/hbck/storage"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

// environment is everything a check or a rebuild talks to, built from
// hbck.toml.
type environment struct {
	catalog     *catalog.Catalog
	fs          storage.FileSystem
	root        string
	coordinator cluster.Coordinator
	workers     int
	retries     int
	timeout     time.Duration
}

// loadConfiguredEnvironment reads hbck.toml, if any, and opens the environment
// it describes.
func loadConfiguredEnvironment() (*environment, error) {
	if _, err := util.LoadConfiguration("hbck"); err != nil {
		return nil, err
	}
	return loadEnvironment(util.GetViper())
}

func loadEnvironment(config util.Configuration) (env *environment, err error) {
	config.SetDefault("hbck.workers", 16)
	config.SetDefault("hbck.retries", 3)
	config.SetDefault("cluster.info_port", 16030)

	env = &environment{
		workers: config.GetInt("hbck.workers"),
		retries: config.GetInt("hbck.retries"),
		timeout: util.GetDuration(config, "hbck.timeout", 30*time.Second),
	}
	if env.catalog, err = catalog.LoadConfiguration(config); err != nil {
		return nil, err
	}
	if env.fs, env.root, err = storage.LoadConfiguration(config); err != nil {
		env.close()
		return nil, fmt.Errorf("open filesystem: %w", err)
	}
	if env.coordinator, err = cluster.LoadConfiguration(config); err != nil {
		env.close()
		return nil, fmt.Errorf("connect to coordinator: %w", err)
	}
	glog.V(1).Infof("catalog %s, root %s, %d workers, %d retries, timeout %v",
		env.catalog.GetName(), env.root, env.workers, env.retries, env.timeout)
	return env, nil
}

func (env *environment) catalogScanner() *catalog.Scanner {
	return &catalog.Scanner{Catalog: env.catalog, Retries: env.retries}
}

func (env *environment) filesystemScanner() *storage.Scanner {
	return &storage.Scanner{FS: env.fs, Root: env.root, Workers: env.workers, Retries: env.retries, Timeout: env.timeout}
}

func (env *environment) clusterScanner() *cluster.Scanner {
	if env.coordinator == nil {
		return nil
	}
	return &cluster.Scanner{
		Coordinator: env.coordinator,
		Client:      cluster.NewHttpRegionServerClient(env.timeout),
		Workers:     env.workers,
		Retries:     env.retries,
		Timeout:     env.timeout,
	}
}

func (env *environment) close() {
	if env.coordinator != nil {
		env.coordinator.Close()
	}
	if env.fs != nil {
		env.fs.Close()
	}
	if env.catalog != nil {
		env.catalog.Shutdown()
	}
}
