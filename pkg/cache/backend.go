package cache

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NewPersister builds the persister for a cache_backend setting. The memory
// backend has no persister and returns nil.
func NewPersister(backend, dir string) (Persister, error) {
	switch strings.ToLower(backend) {
	case "", BackendMemory:
		return nil, nil
	case BackendDisk:
		p, err := NewDiskPersister(dir)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendSQLite:
		p, err := NewSQLitePersister(filepath.Join(dir, SQLiteFile))
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q (must be one of memory, disk, sqlite)", ErrUnknownBackend, backend)
	}
}
