package cache

import (
	"os"
	"time"

	"github.com/glorpus-work/regindex/pkg/fsutil"
)

// CacheDirPerm is the default permission mode for cache directories (rwx------).
var CacheDirPerm os.FileMode = fsutil.DirModePrivate

// DefaultGrace is the multiple of an entry's TTL after which Sweep evicts it.
const DefaultGrace = 2.0

// Backend names accepted by the cache_backend setting.
const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendSQLite = "sqlite"
)

// On-disk layout below the cache directory.
const (
	bulkFile      = "bulk" + payloadSuffix
	metaSuffix    = ".meta.json"
	payloadSuffix = ".payload.json"
	packagesDir   = "packages"
	searchDir     = "search"
	// SQLiteFile is the database file used by the sqlite backend.
	SQLiteFile = "cache.db"
)

const bytesPerMB = 1 << 20

// defaultTTL applies when a caller stores an entry without a TTL.
const defaultTTL = 24 * time.Hour
