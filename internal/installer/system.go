package installer

import (
	"os"

	"github.com/couchbase/cb-non-package-installer/internal/fsutil"
)

// System abstracts the filesystem operations the installer mutates the
// installation tree with, so tests can observe or fail individual steps.
type System interface {
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	RemoveAll(path string) error
	CopyPath(src string, dst string) error
	IsDirEmpty(name string) (bool, error)
}

// RealSystem implements System using the OS filesystem.
type RealSystem struct{}

// Stat returns a FileInfo describing the named file.
func (RealSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// MkdirAll creates a directory named path, along with any necessary parents.
func (RealSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// RemoveAll removes path and any children it contains.
func (RealSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// CopyPath copies a file, directory tree or symlink from src to dst.
func (RealSystem) CopyPath(src string, dst string) error {
	return fsutil.CopyPath(src, dst)
}

// IsDirEmpty reports whether the directory at name has no entries.
func (RealSystem) IsDirEmpty(name string) (bool, error) {
	return fsutil.IsDirEmpty(name)
}
