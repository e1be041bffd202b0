package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/dot2gua/hbase98learning/hbck/util"
)

// FileSystem is the part of the distributed filesystem hbck needs. Paths
// are slash separated.
type FileSystem interface {
	ListChildDirectories(ctx context.Context, path string) ([]string, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	MkdirAll(ctx context.Context, path string) error
	WriteFile(ctx context.Context, path string, data []byte) error
	RemoveAll(ctx context.Context, path string) error
	Close() error
}

// LoadConfiguration opens the filesystem configured under [storage] and
// returns it with the hbase root directory.
func LoadConfiguration(config util.Configuration) (FileSystem, string, error) {
	config.SetDefault("storage.type", "local")
	config.SetDefault("storage.root", "/hbase")
	root := config.GetString("storage.root")

	switch strings.ToLower(config.GetString("storage.type")) {
	case "local":
		return NewOsFileSystem(), util.ResolvePath(root), nil
	case "hdfs":
		fs, err := NewHdfsFileSystem(config.GetStringSlice("storage.hdfs.namenodes"), config.GetString("storage.hdfs.user"))
		if err != nil {
			return nil, "", err
		}
		return fs, root, nil
	default:
		return nil, "", fmt.Errorf("unknown storage.type %q, supported types are local and hdfs", config.GetString("storage.type"))
	}
}
