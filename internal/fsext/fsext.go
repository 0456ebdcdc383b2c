// Package fsext provides extended file system functions
package fsext

import (
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// Fs represents a file system
type Fs = afero.Fs

// NewMemMapFs returns a Fs that is in memory
func NewMemMapFs() Fs {
	return afero.NewMemMapFs()
}

// NewReadOnlyFs returns a Fs wrapping the provided one and returning error on any not read operation.
func NewReadOnlyFs(fs Fs) Fs {
	return afero.NewReadOnlyFs(fs)
}

// NewOsFs returns a new wrapped os.Fs
func NewOsFs() Fs {
	return afero.NewOsFs()
}

// WriteFile writes the provided data to the provided fs in the provided filename
func WriteFile(fs Fs, filename string, data []byte, perm fs.FileMode) error {
	return afero.WriteFile(fs, filename, data, perm)
}

// ReadFile reads the whole file from the filesystem
func ReadFile(fs Fs, filename string) ([]byte, error) {
	return afero.ReadFile(fs, filename)
}

// Exists checks if the provided path exists on the filesystem
func Exists(fs Fs, path string) (bool, error) {
	return afero.Exists(fs, path)
}

// IsDir checks if the provided path is a directory
func IsDir(fs Fs, path string) (bool, error) {
	return afero.IsDir(fs, path)
}

// Abs returns an absolute representation of path. If the path is not absolute
// it will be joined with root, which is assumed to be a directory.
func Abs(root, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return filepath.Clean(path)
}
