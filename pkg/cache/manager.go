package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/fsutil"
)

// DefaultManager implements the Manager interface over a cache directory
// written by DiskPersister or SQLitePersister.
type DefaultManager struct {
	directory string
}

// NewManager creates a new cache manager.
func NewManager(directory string) *DefaultManager {
	return &DefaultManager{
		directory: directory,
	}
}

// NewDefaultManager creates a new cache manager with default directory.
func NewDefaultManager() (*DefaultManager, error) {
	cacheDir, err := fsutil.GetCacheDir()
	if err != nil {
		return nil, errutils.Wrapf(err, "failed to get user cache directory")
	}

	if err := os.MkdirAll(cacheDir, CacheDirPerm); err != nil {
		return nil, errutils.Wrapf(err, "failed to create cache directory")
	}

	return NewManager(cacheDir), nil
}

// Clean removes cached files according to the specified options. The sqlite
// database is removed whenever every kind is being cleaned for every repository.
func (cm *DefaultManager) Clean(options CleanOptions) (*CleanResult, error) {
	result := &CleanResult{}

	// Default to cleaning all if no specific flags are set
	if !options.Bulk && !options.API {
		options.All = true
	}
	if options.All {
		options.Bulk, options.API = true, true
	}

	repoDirs, err := cm.repositoryDirs(options.Repository)
	if err != nil {
		return nil, errutils.Wrap(err, ErrCacheClean.Error())
	}

	for _, repoDir := range repoDirs {
		if options.Bulk {
			for _, name := range []string{bulkFile, metaPath(bulkFile)} {
				size, err := removeFile(filepath.Join(repoDir, name))
				if err != nil {
					return nil, errutils.Wrapf(err, "failed to clean bulk cache in %s", repoDir)
				}
				result.BulkFreed += size
			}
		}
		if options.API {
			for _, sub := range []string{packagesDir, searchDir} {
				size, err := cleanDirectory(filepath.Join(repoDir, sub))
				if err != nil {
					return nil, errutils.Wrapf(err, "failed to clean api cache in %s", repoDir)
				}
				result.APIFreed += size
			}
		}
		// drop the repository directory once it is empty
		_ = os.Remove(repoDir)
	}

	if options.Bulk && options.API && options.Repository == "" {
		size, err := removeFile(filepath.Join(cm.directory, SQLiteFile))
		if err != nil {
			return nil, errutils.Wrap(err, "failed to remove cache database")
		}
		result.BulkFreed += size
	}

	result.TotalFreed = result.BulkFreed + result.APIFreed
	return result, nil
}

// GetInfo returns information about the cache.
func (cm *DefaultManager) GetInfo() (*Info, error) {
	info := &Info{Directory: cm.directory}

	repoDirs, err := cm.repositoryDirs("")
	if err != nil {
		return nil, errutils.Wrap(err, ErrCacheInfo.Error())
	}
	info.Repositories = len(repoDirs)

	for _, repoDir := range repoDirs {
		for _, name := range []string{bulkFile, metaPath(bulkFile)} {
			fi, err := os.Stat(filepath.Join(repoDir, name))
			if err == nil {
				info.BulkSize += fi.Size()
				info.BulkFiles++
				info.LastModified = latest(info.LastModified, fi.ModTime())
			}
		}
		for _, sub := range []string{packagesDir, searchDir} {
			size, files, err := fsutil.DirStats(filepath.Join(repoDir, sub))
			if err != nil {
				return nil, errutils.Wrapf(err, "failed to get api cache info for %s", repoDir)
			}
			info.APISize += size
			info.APIFiles += files
		}
	}

	if fi, err := os.Stat(filepath.Join(cm.directory, SQLiteFile)); err == nil {
		info.DatabaseSize = fi.Size()
		info.LastModified = latest(info.LastModified, fi.ModTime())
	}

	info.TotalSize = info.BulkSize + info.APISize + info.DatabaseSize
	return info, nil
}

// GetDirectory returns the cache directory path.
func (cm *DefaultManager) GetDirectory() string {
	return cm.directory
}

// SetDirectory sets the cache directory path.
func (cm *DefaultManager) SetDirectory(dir string) error {
	if dir == "" {
		return ErrCacheDirectory
	}
	cm.directory = dir
	return nil
}

// repositoryDirs lists per-repository subdirectories, optionally only one.
func (cm *DefaultManager) repositoryDirs(repository string) ([]string, error) {
	if repository != "" {
		dir := filepath.Join(cm.directory, fsutil.EscapeName(repository))
		if _, err := os.Stat(dir); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		return []string{dir}, nil
	}

	entries, err := os.ReadDir(cm.directory)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(cm.directory, e.Name()))
		}
	}
	return dirs, nil
}

// cleanDirectory removes a directory and returns bytes freed.
func cleanDirectory(dir string) (int64, error) {
	size, _, err := fsutil.DirStats(dir)
	if err != nil {
		return 0, errutils.Wrapf(err, "error walking directory %s", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, errutils.Wrapf(err, "failed to remove directory %s", dir)
	}
	return size, nil
}

func removeFile(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	if err := os.Remove(path); err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
