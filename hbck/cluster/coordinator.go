package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dot2gua/hbase98learning/hbck/util"
)

var (
	ErrLocked = errors.New("another hbck holds the lock")
)

// Coordinator is the coordination service view of the cluster.
type Coordinator interface {
	// IsClusterActive is true while a master holds its session.
	IsClusterActive(ctx context.Context) (bool, error)
	// ListLiveServers returns the status addresses of registered region servers.
	ListLiveServers(ctx context.Context) ([]string, error)
	// ListRegionsInTransition returns encoded names of regions being moved.
	ListRegionsInTransition(ctx context.Context) ([]string, error)
	// Lock takes the exclusive hbck lock or fails with ErrLocked.
	Lock(ctx context.Context, owner string) (unlock func(), err error)
	Close() error
}

// LoadConfiguration connects to the coordinator configured under [cluster].
// The "none" coordinator returns nil: deployment is then never known.
func LoadConfiguration(config util.Configuration) (Coordinator, error) {
	config.SetDefault("cluster.coordinator", "zookeeper")
	config.SetDefault("cluster.zookeeper.servers", []string{"localhost:2181"})
	config.SetDefault("cluster.zookeeper.parent", "/hbase")
	config.SetDefault("cluster.etcd.servers", []string{"localhost:2379"})
	config.SetDefault("cluster.etcd.prefix", "/hbase/")

	switch strings.ToLower(config.GetString("cluster.coordinator")) {
	case "zookeeper", "zk":
		return NewZkCoordinator(
			config.GetStringSlice("cluster.zookeeper.servers"),
			config.GetString("cluster.zookeeper.parent"),
			config.GetInt("cluster.info_port"),
			util.GetDuration(config, "cluster.zookeeper.session_timeout", 10*time.Second),
		)
	case "etcd":
		return NewEtcdCoordinator(
			config.GetStringSlice("cluster.etcd.servers"),
			config.GetString("cluster.etcd.prefix"),
			util.GetDuration(config, "cluster.etcd.timeout", 3*time.Second),
		)
	case "none":
		return nil, nil
	case "static":
		return NewStaticCoordinator(config.GetBool("cluster.static.active"), config.GetStringSlice("cluster.static.servers")), nil
	default:
		return nil, fmt.Errorf("unknown cluster.coordinator %q, supported are zookeeper, etcd, static and none", config.GetString("cluster.coordinator"))
	}
}
