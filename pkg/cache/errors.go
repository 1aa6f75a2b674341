package cache

import (
	"fmt"
)

// Common cache errors.
var (
	// ErrCacheClean is returned when there's an error cleaning the cache.
	ErrCacheClean = fmt.Errorf("failed to clean cache")

	// ErrCacheInfo is returned when there's an error getting cache information.
	ErrCacheInfo = fmt.Errorf("failed to get cache info")

	// ErrCacheDirectory is returned when there's an error with the cache directory.
	ErrCacheDirectory = fmt.Errorf("invalid cache directory")

	// ErrCapacity is the sentinel every CapacityError unwraps to.
	ErrCapacity = fmt.Errorf("cache capacity exceeded")

	// ErrPersist is returned when an entry could not be written to the backend.
	ErrPersist = fmt.Errorf("failed to persist cache entry")

	// ErrStoreClosed is returned by Put after Close.
	ErrStoreClosed = fmt.Errorf("cache store is closed")

	// ErrUnknownBackend is returned for an unsupported cache_backend value.
	ErrUnknownBackend = fmt.Errorf("unknown cache backend")

	// ErrEmptyKey is returned when an entry has no key.
	ErrEmptyKey = fmt.Errorf("cache key cannot be empty")
)

// CapacityError rejects a bulk entry larger than the repository's max_size_mb.
// The data is still valid; it just is not cached.
type CapacityError struct {
	Repository string
	Size       int64
	Limit      int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d bytes exceeds the %d byte limit for %s", ErrCapacity, e.Size, e.Limit, e.Repository)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacity
}
