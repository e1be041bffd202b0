package storage

import (
	"context"
	"os"

	"github.com/spf13/afero"
)

// AferoFileSystem serves a local directory tree, or an in-memory one in
// tests.
type AferoFileSystem struct {
	Fs afero.Fs
}

func NewOsFileSystem() *AferoFileSystem {
	return &AferoFileSystem{Fs: afero.NewOsFs()}
}

func NewMemFileSystem() *AferoFileSystem {
	return &AferoFileSystem{Fs: afero.NewMemMapFs()}
}

func (fs *AferoFileSystem) ListChildDirectories(ctx context.Context, path string) (names []string, err error) {
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(fs.Fs, path)
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

func (fs *AferoFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return afero.ReadFile(fs.Fs, path)
}

func (fs *AferoFileSystem) MkdirAll(ctx context.Context, path string) error {
	return fs.Fs.MkdirAll(path, 0755)
}

func (fs *AferoFileSystem) WriteFile(ctx context.Context, path string, data []byte) error {
	return afero.WriteFile(fs.Fs, path, data, 0644)
}

func (fs *AferoFileSystem) RemoveAll(ctx context.Context, path string) error {
	err := fs.Fs.RemoveAll(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (fs *AferoFileSystem) Close() error {
	return nil
}
