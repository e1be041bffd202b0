package inventory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dot2gua/hbase98learning/hbck/region"
)

const (
	SourceCatalog    = "catalog"
	SourceFilesystem = "filesystem"
	SourceCluster    = "cluster"
)

// ScanError is an I/O failure on one unit (a catalog, a region directory,
// a server) that persisted after the bounded retries.
type ScanError struct {
	Source   string
	Table    string
	Unit     string
	Attempts int
	Err      error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s %s failed after %d attempts: %v", e.Source, e.Unit, e.Attempts, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

type BadRow struct {
	RowKey string
	Err    error
}

// Catalog is what the catalog table declares.
type Catalog struct {
	Entries map[region.Key]*region.CatalogEntry
	BadRows []BadRow
	// table => generation of a rebuild commit that never finished
	PendingCommits map[string]uint64
}

func NewCatalog() *Catalog {
	return &Catalog{
		Entries:        make(map[region.Key]*region.CatalogEntry),
		PendingCommits: make(map[string]uint64),
	}
}

func (c *Catalog) Add(entry *region.CatalogEntry) {
	if entry.Descriptor == nil {
		c.BadRows = append(c.BadRows, BadRow{RowKey: entry.RowKey, Err: entry.DecodeErr})
		return
	}
	c.Entries[entry.Descriptor.Key()] = entry
}

func (c *Catalog) Tables() []string {
	set := make(map[string]struct{})
	for key := range c.Entries {
		set[key.Table] = struct{}{}
	}
	return sortedNames(set)
}

// TableEntries lists the rows of one table ordered by key.
func (c *Catalog) TableEntries(table string) []*region.CatalogEntry {
	var entries []*region.CatalogEntry
	for key, entry := range c.Entries {
		if key.Table == table {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Descriptor.Key().Less(entries[j].Descriptor.Key())
	})
	return entries
}

type FilesystemRecord struct {
	Descriptor *region.Descriptor
	Path       string
	Families   []string
}

type DegenerateDir struct {
	Table  string
	Path   string
	Reason string
}

// Filesystem is what physically exists under the table directories.
type Filesystem struct {
	sync.Mutex
	Records    map[region.Key]*FilesystemRecord
	Degenerate []DegenerateDir
	ScanErrors []*ScanError
	Tables     []string
}

func NewFilesystem() *Filesystem {
	return &Filesystem{
		Records: make(map[region.Key]*FilesystemRecord),
	}
}

func (f *Filesystem) AddRecord(record *FilesystemRecord) {
	f.Lock()
	defer f.Unlock()
	f.Records[record.Descriptor.Key()] = record
}

func (f *Filesystem) AddDegenerate(dir DegenerateDir) {
	f.Lock()
	defer f.Unlock()
	f.Degenerate = append(f.Degenerate, dir)
}

func (f *Filesystem) AddScanError(scanErr *ScanError) {
	f.Lock()
	defer f.Unlock()
	f.ScanErrors = append(f.ScanErrors, scanErr)
}

func (f *Filesystem) AddTable(table string) {
	f.Lock()
	defer f.Unlock()
	f.Tables = append(f.Tables, table)
}

// Descriptors returns the descriptors found for table ordered by key.
func (f *Filesystem) Descriptors(table string) []*region.Descriptor {
	var descriptors []*region.Descriptor
	for key, record := range f.Records {
		if key.Table == table {
			descriptors = append(descriptors, record.Descriptor)
		}
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Key().Less(descriptors[j].Key())
	})
	return descriptors
}

// TableScanErrors lists the failures that happened while scanning table.
func (f *Filesystem) TableScanErrors(table string) []*ScanError {
	var errs []*ScanError
	for _, scanErr := range f.ScanErrors {
		if scanErr.Table == table {
			errs = append(errs, scanErr)
		}
	}
	return errs
}

// Deployment is what the live servers report. The zero value from Absent
// means the cluster is offline and deployment facts are unknown, which is
// different from a live cluster where nothing is deployed.
type Deployment struct {
	sync.Mutex
	Live        bool
	Servers     []string
	Regions     map[region.Key][]string
	Descriptors map[region.Key]*region.Descriptor
	ScanErrors  []*ScanError
}

func Absent() *Deployment {
	return &Deployment{}
}

func NewDeployment(servers []string) *Deployment {
	return &Deployment{
		Live:        true,
		Servers:     servers,
		Regions:     make(map[region.Key][]string),
		Descriptors: make(map[region.Key]*region.Descriptor),
	}
}

// Add records that server hosts d. Reports are kept as they come, so a
// region reported twice by one server is listed twice.
func (d *Deployment) Add(server string, descriptor *region.Descriptor) {
	d.Lock()
	defer d.Unlock()
	key := descriptor.Key()
	d.Regions[key] = append(d.Regions[key], server)
	if _, found := d.Descriptors[key]; !found {
		d.Descriptors[key] = descriptor
	}
}

func (d *Deployment) AddScanError(scanErr *ScanError) {
	d.Lock()
	defer d.Unlock()
	d.ScanErrors = append(d.ScanErrors, scanErr)
}

func (d *Deployment) ServersOf(key region.Key) []string {
	if d == nil || !d.Live {
		return nil
	}
	return d.Regions[key]
}

// OpenRegionCount is the number of (server, region) reports.
func (d *Deployment) OpenRegionCount() (count int) {
	if d == nil {
		return 0
	}
	for _, servers := range d.Regions {
		count += len(servers)
	}
	return
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
