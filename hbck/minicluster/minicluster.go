// Package minicluster runs a whole cluster in process: an in-memory
// filesystem and catalog, a static coordinator and region servers serving
// their status page over loopback HTTP.
package minicluster

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/catalog/memory"
	"github.com/dot2gua/hbase98learning/hbck/cluster"
	"github.com/dot2gua/hbase98learning/hbck/region"
	"github.com/dot2gua/hbase98learning/hbck/storage"
)

const (
	Root          = "/hbase"
	DefaultFamily = "f"
)

type RegionServer struct {
	Name    string
	server  *httptest.Server
	mu      sync.Mutex
	regions map[region.Key]*region.Descriptor
}

func (rs *RegionServer) Open(d *region.Descriptor) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.regions[d.Key()] = d
}

func (rs *RegionServer) Close(key region.Key) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.regions, key)
}

func (rs *RegionServer) closeAll() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.regions = make(map[region.Key]*region.Descriptor)
}

func (rs *RegionServer) OpenRegions() []*region.Descriptor {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	descriptors := make([]*region.Descriptor, 0, len(rs.regions))
	for _, d := range rs.regions {
		descriptors = append(descriptors, d)
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Key().Less(descriptors[j].Key())
	})
	return descriptors
}

type MiniCluster struct {
	FS          *storage.AferoFileSystem
	Catalog     *catalog.Catalog
	Coordinator *cluster.StaticCoordinator
	Servers     []*RegionServer
	nextId      int64
	mu          sync.Mutex
}

// Start brings up a running cluster with the given number of region
// servers.
func Start(servers int) *MiniCluster {
	mc := &MiniCluster{
		FS:          storage.NewMemFileSystem(),
		Catalog:     catalog.NewCatalog(memory.NewMemoryStore()),
		Coordinator: cluster.NewStaticCoordinator(false, nil),
		nextId:      time.Now().UnixMilli(),
	}
	for i := 0; i < servers; i++ {
		rs := &RegionServer{regions: make(map[region.Key]*region.Descriptor)}
		rs.server = httptest.NewUnstartedServer(nil)
		rs.Name = rs.server.Listener.Addr().String()
		rs.server.Config.Handler = cluster.RegionsHandler(rs.Name, rs.OpenRegions)
		rs.server.Start()
		mc.Servers = append(mc.Servers, rs)
	}
	mc.Coordinator.SetActive(true)
	mc.Coordinator.SetServers(mc.ServerNames())
	return mc
}

func (mc *MiniCluster) ServerNames() (names []string) {
	for _, rs := range mc.Servers {
		names = append(names, rs.Name)
	}
	return
}

func (mc *MiniCluster) server(name string) *RegionServer {
	for _, rs := range mc.Servers {
		if rs.Name == name {
			return rs
		}
	}
	return nil
}

func (mc *MiniCluster) regionId() int64 {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.nextId++
	return mc.nextId
}

// CreateTable lays out one region per range between the split keys, writes
// its catalog row and opens it, spreading regions over the servers.
func (mc *MiniCluster) CreateTable(ctx context.Context, table string, splits ...string) ([]*region.Descriptor, error) {
	boundaries := append([]string{""}, splits...)
	sort.Strings(boundaries[1:])
	var descriptors []*region.Descriptor
	for i, start := range boundaries {
		d := &region.Descriptor{Table: table, RegionId: mc.regionId()}
		if start != "" {
			d.StartKey = []byte(start)
		}
		if i+1 < len(boundaries) {
			d.EndKey = []byte(boundaries[i+1])
		}
		if err := mc.AddRegion(ctx, d, i); err != nil {
			return descriptors, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// AddRegion creates d everywhere and opens it on server n modulo the
// number of servers.
func (mc *MiniCluster) AddRegion(ctx context.Context, d *region.Descriptor, n int) error {
	if _, err := storage.CreateRegionDir(ctx, mc.FS, Root, d, DefaultFamily); err != nil {
		return err
	}
	server := ""
	if len(mc.Servers) > 0 {
		rs := mc.Servers[n%len(mc.Servers)]
		server = rs.Name
		rs.Open(d)
	}
	state := region.StateOpen
	if server == "" {
		state = region.StateUnassigned
	}
	return mc.Catalog.PutEntries(ctx, []*region.CatalogEntry{region.NewCatalogEntry(d, server, state, time.Now())})
}

// DeleteRegion removes the chosen pieces of evidence for d.
func (mc *MiniCluster) DeleteRegion(ctx context.Context, d *region.Descriptor, unassign, fromCatalog, fromFilesystem bool) error {
	if unassign {
		for _, rs := range mc.Servers {
			rs.Close(d.Key())
		}
	}
	if fromCatalog {
		if err := mc.Catalog.DeleteEntries(ctx, []string{d.RegionName()}); err != nil {
			return err
		}
	}
	if fromFilesystem {
		if err := storage.DeleteRegionDir(ctx, mc.FS, Root, d); err != nil {
			return err
		}
	}
	return nil
}

// Deploy opens d on the named server without touching the catalog.
func (mc *MiniCluster) Deploy(server string, d *region.Descriptor) error {
	rs := mc.server(server)
	if rs == nil {
		return fmt.Errorf("no region server %s", server)
	}
	rs.Open(d)
	return nil
}

func (mc *MiniCluster) WipeCatalog(ctx context.Context) error {
	return mc.Catalog.Truncate(ctx)
}

// Shutdown closes every region and stops the cluster. The status pages
// stay reachable so a stopped cluster can still be scanned.
func (mc *MiniCluster) Shutdown() {
	for _, rs := range mc.Servers {
		rs.closeAll()
	}
	mc.Coordinator.SetActive(false)
	mc.Coordinator.SetServers(nil)
}

// Restart starts the cluster again and assigns every online region found
// in the catalog, writing the new location back.
func (mc *MiniCluster) Restart(ctx context.Context) error {
	mc.Coordinator.SetActive(true)
	mc.Coordinator.SetServers(mc.ServerNames())
	var assigned []*region.CatalogEntry
	n := 0
	if err := mc.Catalog.ListRows(ctx, "", func(entry *region.CatalogEntry) bool {
		if entry.Descriptor == nil || entry.Descriptor.Offline || len(mc.Servers) == 0 {
			return true
		}
		rs := mc.Servers[n%len(mc.Servers)]
		n++
		rs.Open(entry.Descriptor)
		entry.Server = rs.Name
		entry.State = region.StateOpen
		entry.UpdatedAt = time.Now()
		assigned = append(assigned, entry)
		return true
	}); err != nil {
		return err
	}
	return mc.Catalog.PutEntries(ctx, assigned)
}

// Close stops the region server status pages.
func (mc *MiniCluster) Close() {
	for _, rs := range mc.Servers {
		rs.server.Close()
	}
}

func (mc *MiniCluster) CatalogScanner() *catalog.Scanner {
	return &catalog.Scanner{Catalog: mc.Catalog, Retries: 2}
}

func (mc *MiniCluster) FilesystemScanner() *storage.Scanner {
	return &storage.Scanner{FS: mc.FS, Root: Root, Workers: 4, Retries: 2, Timeout: 5 * time.Second}
}

func (mc *MiniCluster) ClusterScanner() *cluster.Scanner {
	return &cluster.Scanner{
		Coordinator: mc.Coordinator,
		Client:      cluster.NewHttpRegionServerClient(5 * time.Second),
		Workers:     4,
		Retries:     2,
		Timeout:     5 * time.Second,
	}
}
