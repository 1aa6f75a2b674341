package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
)

// EnsureDir creates a directory and all necessary parent directories with default permissions if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, DirModeDefault)
}

// DirStats walks root and returns the total size in bytes and the number of
// regular files below it. A missing root yields zeros and no error.
func DirStats(root string) (size int64, files int, err error) {
	err = filepath.WalkDir(root, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		size += info.Size()
		files++
		return nil
	})
	return size, files, err
}
