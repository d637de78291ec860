package tool

import "io/fs"

// FilesystemBackend abstracts file I/O for the filesystem tools.
type FilesystemBackend interface {
	ReadFile(path string) ([]byte, error)
	// WriteFile creates parent directories as needed.
	WriteFile(path string, data []byte) error
	Remove(path string) error
	ReadDir(path string) ([]fs.DirEntry, error)
	Stat(path string) (fs.FileInfo, error)
	Name() string
}
