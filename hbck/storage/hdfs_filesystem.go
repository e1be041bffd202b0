package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/colinmarc/hdfs/v2"
	"github.com/golang/glog"
)

// HdfsFileSystem talks to the namenodes directly with the native protocol.
type HdfsFileSystem struct {
	client *hdfs.Client
}

func NewHdfsFileSystem(namenodes []string, user string) (*HdfsFileSystem, error) {
	if len(namenodes) == 0 {
		return nil, fmt.Errorf("no hdfs namenodes configured")
	}
	glog.V(0).Infof("hdfs namenodes %v as %q", namenodes, user)
	client, err := hdfs.NewClient(hdfs.ClientOptions{
		Addresses: namenodes,
		User:      user,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to hdfs %v: %w", namenodes, err)
	}
	return &HdfsFileSystem{client: client}, nil
}

func (fs *HdfsFileSystem) ListChildDirectories(ctx context.Context, path string) (names []string, err error) {
	infos, err := fs.client.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.IsDir() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

func (fs *HdfsFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return fs.client.ReadFile(path)
}

func (fs *HdfsFileSystem) MkdirAll(ctx context.Context, path string) error {
	return fs.client.MkdirAll(path, 0755)
}

func (fs *HdfsFileSystem) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := fs.client.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	writer, err := fs.client.Create(path)
	if err != nil {
		return err
	}
	if _, err = writer.Write(data); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

func (fs *HdfsFileSystem) RemoveAll(ctx context.Context, path string) error {
	err := fs.client.RemoveAll(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (fs *HdfsFileSystem) Close() error {
	return fs.client.Close()
}
