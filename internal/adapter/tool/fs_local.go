package tool

import (
	"io/fs"
	"os"
	"path/filepath"
)

// LocalFilesystemBackend performs file I/O on the local disk.
type LocalFilesystemBackend struct{}

// NewLocalFilesystemBackend creates a local filesystem backend.
func NewLocalFilesystemBackend() *LocalFilesystemBackend { return &LocalFilesystemBackend{} }

func (LocalFilesystemBackend) Name() string { return "local" }

func (LocalFilesystemBackend) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (LocalFilesystemBackend) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}

func (LocalFilesystemBackend) Remove(path string) error { return os.Remove(path) }

func (LocalFilesystemBackend) ReadDir(path string) ([]fs.DirEntry, error) { return os.ReadDir(path) }

func (LocalFilesystemBackend) Stat(path string) (fs.FileInfo, error) { return os.Stat(path) }
