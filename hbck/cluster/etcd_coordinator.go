package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// EtcdCoordinator reads cluster state kept in etcd: <prefix>master while a
// master runs, <prefix>rs/<name> with the status address of each region
// server, <prefix>rit/<encoded name> per region in transition.
type EtcdCoordinator struct {
	client  *clientv3.Client
	prefix  string
	timeout time.Duration
}

func NewEtcdCoordinator(servers []string, prefix string, timeout time.Duration) (*EtcdCoordinator, error) {
	glog.V(0).Infof("coordinator etcd %v%s", servers, prefix)
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   servers,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to etcd %v: %w", servers, err)
	}
	return &EtcdCoordinator{client: client, prefix: prefix, timeout: timeout}, nil
}

func (c *EtcdCoordinator) IsClusterActive(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.client.Get(ctx, c.prefix+"master", clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("check master key: %w", err)
	}
	return resp.Count > 0, nil
}

func (c *EtcdCoordinator) ListLiveServers(ctx context.Context) ([]string, error) {
	kvs, err := c.list(ctx, "rs/")
	if err != nil {
		return nil, err
	}
	var servers []string
	for name, value := range kvs {
		if value != "" {
			servers = append(servers, value)
		} else {
			servers = append(servers, ServerAddress(name, 0))
		}
	}
	return servers, nil
}

func (c *EtcdCoordinator) ListRegionsInTransition(ctx context.Context) ([]string, error) {
	kvs, err := c.list(ctx, "rit/")
	if err != nil {
		return nil, err
	}
	var names []string
	for name := range kvs {
		names = append(names, name)
	}
	return names, nil
}

func (c *EtcdCoordinator) list(ctx context.Context, dir string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.client.Get(ctx, c.prefix+dir, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list %s%s: %w", c.prefix, dir, err)
	}
	kvs := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		kvs[strings.TrimPrefix(string(kv.Key), c.prefix+dir)] = string(kv.Value)
	}
	return kvs, nil
}

// Lock holds a mutex bound to a lease, so a crashed hbck releases it when
// the lease expires.
func (c *EtcdCoordinator) Lock(ctx context.Context, owner string) (func(), error) {
	session, err := concurrency.NewSession(c.client, concurrency.WithTTL(30))
	if err != nil {
		return nil, fmt.Errorf("etcd session: %w", err)
	}
	mutex := concurrency.NewMutex(session, c.prefix+"hbck-lock")
	if err = mutex.TryLock(ctx); err != nil {
		session.Close()
		if errors.Is(err, concurrency.ErrLocked) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, c.prefix+"hbck-lock")
		}
		return nil, fmt.Errorf("lock %shbck-lock: %w", c.prefix, err)
	}
	glog.V(1).Infof("%s holds %shbck-lock", owner, c.prefix)
	return func() {
		if err := mutex.Unlock(context.Background()); err != nil {
			glog.Warningf("unlock %shbck-lock: %v", c.prefix, err)
		}
		session.Close()
	}, nil
}

func (c *EtcdCoordinator) Close() error {
	return c.client.Close()
}
