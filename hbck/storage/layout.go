package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/dot2gua/hbase98learning/hbck/region"
)

const (
	RegionInfoFile = ".regioninfo"
)

var (
	ErrDescriptorNotFound = errors.New("region descriptor not found")
)

func TableDir(root, table string) string {
	return path.Join(root, table)
}

func RegionDir(root string, d *region.Descriptor) string {
	return path.Join(TableDir(root, d.Table), d.EncodedName())
}

// IsHidden is true for .tabledesc, .tmp and other bookkeeping entries that
// are not tables or regions.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ListTables lists the table directories under root.
func ListTables(ctx context.Context, fsys FileSystem, root string) ([]string, error) {
	names, err := fsys.ListChildDirectories(ctx, root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return visible(names), nil
}

func visible(names []string) (result []string) {
	for _, name := range names {
		if !IsHidden(name) {
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return
}

// ReadDescriptor loads the descriptor persisted in regionDir. It returns
// ErrDescriptorNotFound when there is none and an error wrapping
// region.ErrMalformedDescriptor when it does not parse; anything else is an
// I/O failure.
func ReadDescriptor(ctx context.Context, fsys FileSystem, regionDir string) (*region.Descriptor, error) {
	data, err := fsys.ReadFile(ctx, path.Join(regionDir, RegionInfoFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrDescriptorNotFound, regionDir)
	}
	if err != nil {
		return nil, err
	}
	return region.Unmarshal(data)
}

// CreateRegionDir lays out a region directory: the descriptor file plus one
// directory per column family.
func CreateRegionDir(ctx context.Context, fsys FileSystem, root string, d *region.Descriptor, families ...string) (string, error) {
	dir := RegionDir(root, d)
	if err := fsys.MkdirAll(ctx, dir); err != nil {
		return dir, fmt.Errorf("create %s: %w", dir, err)
	}
	for _, family := range families {
		if err := fsys.MkdirAll(ctx, path.Join(dir, family)); err != nil {
			return dir, fmt.Errorf("create family %s: %w", family, err)
		}
	}
	if err := fsys.WriteFile(ctx, path.Join(dir, RegionInfoFile), d.Marshal()); err != nil {
		return dir, fmt.Errorf("write descriptor of %s: %w", d.RegionName(), err)
	}
	return dir, nil
}

func DeleteRegionDir(ctx context.Context, fsys FileSystem, root string, d *region.Descriptor) error {
	return fsys.RemoveAll(ctx, RegionDir(root, d))
}
