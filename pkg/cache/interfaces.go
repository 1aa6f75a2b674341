package cache

import "time"

//go:generate mockgen -destination=./mocks/persister.go . Persister

// Persister stores cache entries outside the process. Save receives the
// serialized record list; Load returns every entry it holds without decoding.
type Persister interface {
	Load() ([]Stored, error)
	Save(entry *Entry, payload []byte) error
	Delete(entry *Entry) error
	Close() error
}

// Manager defines the interface for cache directory operations.
type Manager interface {
	Clean(options CleanOptions) (*CleanResult, error)
	GetInfo() (*Info, error)
	GetDirectory() string
	SetDirectory(dir string) error
}

// CleanOptions specifies what to clean from the cache directory.
type CleanOptions struct {
	All bool
	// Bulk removes bulk listings.
	Bulk bool
	// API removes per-package and search entries.
	API bool
	// Repository restricts cleaning to one repository.
	Repository string
}

// CleanResult contains information about what was cleaned.
type CleanResult struct {
	TotalFreed int64
	BulkFreed  int64
	APIFreed   int64
}

// Info represents cache directory information.
type Info struct {
	Directory    string    `json:"directory" yaml:"directory"`
	TotalSize    int64     `json:"total_size" yaml:"total_size"`
	BulkSize     int64     `json:"bulk_size" yaml:"bulk_size"`
	BulkFiles    int       `json:"bulk_files" yaml:"bulk_files"`
	APISize      int64     `json:"api_size" yaml:"api_size"`
	APIFiles     int       `json:"api_files" yaml:"api_files"`
	DatabaseSize int64     `json:"database_size" yaml:"database_size"`
	Repositories int       `json:"repositories" yaml:"repositories"`
	LastModified time.Time `json:"last_modified" yaml:"last_modified"`
}

// SweepResult reports what one Sweep pass did.
type SweepResult struct {
	Evicted   []string `json:"evicted" yaml:"evicted"`
	Protected int      `json:"protected" yaml:"protected"`
	Remaining int      `json:"remaining" yaml:"remaining"`
}

// RepositoryStats aggregates entries of one repository.
type RepositoryStats struct {
	Entries   int           `json:"entries" yaml:"entries"`
	Expired   int           `json:"expired" yaml:"expired"`
	Records   int           `json:"records" yaml:"records"`
	Bytes     int64         `json:"bytes" yaml:"bytes"`
	OldestAge time.Duration `json:"oldest_age" yaml:"oldest_age"`
}

// Stats is a snapshot of the whole store.
type Stats struct {
	Entries      int                        `json:"entries" yaml:"entries"`
	Expired      int                        `json:"expired" yaml:"expired"`
	Bytes        int64                      `json:"bytes" yaml:"bytes"`
	Hits         uint64                     `json:"hits" yaml:"hits"`
	Misses       uint64                     `json:"misses" yaml:"misses"`
	Evictions    uint64                     `json:"evictions" yaml:"evictions"`
	Repositories map[string]RepositoryStats `json:"repositories" yaml:"repositories"`
}
