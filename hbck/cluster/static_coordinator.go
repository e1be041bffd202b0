package cluster

import (
	"context"
	"sync"
)

// StaticCoordinator serves a fixed, settable view of the cluster. It is used
// where no coordination service exists and by the mini cluster.
type StaticCoordinator struct {
	mu          sync.Mutex
	active      bool
	servers     []string
	transitions []string
	lockOwner   string
}

func NewStaticCoordinator(active bool, servers []string) *StaticCoordinator {
	return &StaticCoordinator{active: active, servers: servers}
}

func (c *StaticCoordinator) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = active
}

func (c *StaticCoordinator) SetServers(servers []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers = append([]string{}, servers...)
}

func (c *StaticCoordinator) SetRegionsInTransition(encodedNames []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions = append([]string{}, encodedNames...)
}

func (c *StaticCoordinator) IsClusterActive(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, nil
}

func (c *StaticCoordinator) ListLiveServers(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.servers...), nil
}

func (c *StaticCoordinator) ListRegionsInTransition(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.transitions...), nil
}

func (c *StaticCoordinator) Lock(ctx context.Context, owner string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lockOwner != "" {
		return nil, ErrLocked
	}
	c.lockOwner = owner
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.lockOwner = ""
	}, nil
}

func (c *StaticCoordinator) Close() error {
	return nil
}
