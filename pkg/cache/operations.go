package cache

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/glorpus-work/regindex/internal/logger"
)

// CacheOperation renders Manager results for people.
type CacheOperation struct {
	manager Manager
}

// NewCacheOperation creates a new cache operation instance.
func NewCacheOperation(manager Manager) *CacheOperation {
	return &CacheOperation{
		manager: manager,
	}
}

// Clean cleans the cache based on the provided options.
func (op *CacheOperation) Clean(options CleanOptions) (string, error) {
	logger.Debug("Cleaning cache", logger.Fields{
		"all":        options.All,
		"bulk":       options.Bulk,
		"api":        options.API,
		"repository": options.Repository,
	})

	result, err := op.manager.Clean(options)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCacheClean, err)
	}

	if result.TotalFreed == 0 {
		return "No files were removed from the cache.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Successfully cleaned cache. Freed %s of disk space.", humanize.IBytes(uint64(result.TotalFreed)))
	if result.BulkFreed > 0 {
		fmt.Fprintf(&b, "\n- Bulk listings: %s", humanize.IBytes(uint64(result.BulkFreed)))
	}
	if result.APIFreed > 0 {
		fmt.Fprintf(&b, "\n- API entries: %s", humanize.IBytes(uint64(result.APIFreed)))
	}
	return b.String(), nil
}

// GetInfo returns formatted information about the cache.
func (op *CacheOperation) GetInfo() (string, error) {
	info, err := op.manager.GetInfo()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCacheInfo, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cache directory: %s\n", info.Directory)
	fmt.Fprintf(&b, "Total size: %s\n", humanize.IBytes(uint64(info.TotalSize)))
	fmt.Fprintf(&b, "Repositories: %d\n", info.Repositories)
	fmt.Fprintf(&b, "Bulk listings: %s (%d files)\n", humanize.IBytes(uint64(info.BulkSize)), info.BulkFiles)
	fmt.Fprintf(&b, "API entries: %s (%d files)\n", humanize.IBytes(uint64(info.APISize)), info.APIFiles)
	if info.DatabaseSize > 0 {
		fmt.Fprintf(&b, "Database: %s\n", humanize.IBytes(uint64(info.DatabaseSize)))
	}
	if !info.LastModified.IsZero() {
		fmt.Fprintf(&b, "Last updated: %s", humanize.Time(info.LastModified))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// GetDirectory returns the cache directory path.
func (op *CacheOperation) GetDirectory() string {
	return op.manager.GetDirectory()
}
