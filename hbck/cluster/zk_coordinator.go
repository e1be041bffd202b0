package cluster

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/golang/glog"
)

const (
	zkMasterNode     = "master"
	zkServersNode    = "rs"
	zkTransitionNode = "region-in-transition"
	zkLockNode       = "hbck-lock"
)

// ZkCoordinator reads the znodes the master and region servers maintain
// under the parent znode.
type ZkCoordinator struct {
	conn     *zk.Conn
	parent   string
	infoPort int
}

type zkLogger struct{}

func (zkLogger) Printf(format string, args ...interface{}) {
	glog.V(1).Infof("zookeeper: "+format, args...)
}

// NewZkCoordinator connects to zookeeper. When infoPort is set, server
// znodes "host,port,startcode" map to host:infoPort, otherwise host:port.
func NewZkCoordinator(servers []string, parent string, infoPort int, sessionTimeout time.Duration) (*ZkCoordinator, error) {
	glog.V(0).Infof("coordinator zookeeper %v%s", servers, parent)
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogger(zkLogger{}))
	if err != nil {
		return nil, fmt.Errorf("connect to zookeeper %v: %w", servers, err)
	}
	return &ZkCoordinator{conn: conn, parent: parent, infoPort: infoPort}, nil
}

func (c *ZkCoordinator) IsClusterActive(ctx context.Context) (bool, error) {
	exists, _, err := c.conn.Exists(path.Join(c.parent, zkMasterNode))
	if err != nil {
		return false, fmt.Errorf("check master znode: %w", err)
	}
	return exists, nil
}

func (c *ZkCoordinator) ListLiveServers(ctx context.Context) ([]string, error) {
	children, err := c.children(zkServersNode)
	if err != nil {
		return nil, err
	}
	var servers []string
	for _, child := range children {
		servers = append(servers, ServerAddress(child, c.infoPort))
	}
	return servers, nil
}

func (c *ZkCoordinator) ListRegionsInTransition(ctx context.Context) ([]string, error) {
	return c.children(zkTransitionNode)
}

func (c *ZkCoordinator) children(name string) ([]string, error) {
	children, _, err := c.conn.Children(path.Join(c.parent, name))
	if errors.Is(err, zk.ErrNoNode) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s znode: %w", name, err)
	}
	return children, nil
}

func (c *ZkCoordinator) Lock(ctx context.Context, owner string) (func(), error) {
	lockPath := path.Join(c.parent, zkLockNode)
	_, err := c.conn.Create(lockPath, []byte(owner), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNodeExists) {
		holder, _, _ := c.conn.Get(lockPath)
		return nil, fmt.Errorf("%w: %s", ErrLocked, holder)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", lockPath, err)
	}
	return func() {
		if err := c.conn.Delete(lockPath, -1); err != nil {
			glog.Warningf("release %s: %v", lockPath, err)
		}
	}, nil
}

func (c *ZkCoordinator) Close() error {
	c.conn.Close()
	return nil
}

// ServerAddress turns a server znode name "host,port,startcode" into an
// address; names already in host:port form are returned as they are.
func ServerAddress(serverName string, infoPort int) string {
	parts := strings.Split(serverName, ",")
	if len(parts) < 2 {
		return serverName
	}
	port := parts[1]
	if infoPort > 0 {
		port = strconv.Itoa(infoPort)
	}
	return parts[0] + ":" + port
}
