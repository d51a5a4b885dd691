// Package cache manages the local directory holding downloaded checkpoints and
// the face detection bundle.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/util"
)

// CleanedMessage is printed by verbose cache cleaning.
const CleanedMessage = "Marlin checkpoints cache cleaned."

// FaceBundleDir is the cache subdirectory of the face detection bundle.
const FaceBundleDir = "face"

// Dir is a cache root.
type Dir struct {
	Root string
}

// New returns a cache rooted at root.
func New(root string) Dir {
	return Dir{Root: root}
}

// Ensure creates the cache root if needed.
func (d Dir) Ensure() error {
	if err := util.EnsureDirectory(d.Root); err != nil {
		return merrors.NewIOError(fmt.Sprintf("failed to create cache directory %s", d.Root), err)
	}
	return nil
}

// Path joins elements onto the cache root.
func (d Dir) Path(elem ...string) string {
	return filepath.Join(append([]string{d.Root}, elem...)...)
}

// FaceBundlePath returns where the face detection bundle is installed.
func (d Dir) FaceBundlePath() string {
	return d.Path(FaceBundleDir)
}

// Exists reports whether the cache root exists.
func (d Dir) Exists() bool {
	info, err := os.Stat(d.Root)
	return err == nil && info.IsDir()
}

// Clean removes the cache root and everything under it. Cleaning a missing
// cache is a no-op. It reports whether anything was removed.
func (d Dir) Clean() (bool, error) {
	if !d.Exists() {
		return false, nil
	}
	if err := os.RemoveAll(d.Root); err != nil {
		return false, merrors.NewIOError(fmt.Sprintf("failed to remove cache directory %s", d.Root), err)
	}
	return true, nil
}

// Size returns the total size in bytes of regular files under the cache root.
func (d Dir) Size() (int64, error) {
	if !d.Exists() {
		return 0, nil
	}
	var total int64
	err := filepath.WalkDir(d.Root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			info, err := entry.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, merrors.NewIOError(fmt.Sprintf("failed to scan cache directory %s", d.Root), err)
	}
	return total, nil
}
