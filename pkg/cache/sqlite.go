package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key        TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    repository TEXT NOT NULL,
    package    TEXT NOT NULL DEFAULT '',
    fetched_at INTEGER NOT NULL,
    ttl_ns     INTEGER NOT NULL,
    size       INTEGER NOT NULL,
    digest     TEXT NOT NULL,
    payload    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_repository ON cache_entries(repository);
`

// SQLitePersister keeps entries in a single sqlite database.
type SQLitePersister struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// NewSQLitePersister opens (creating if needed) the database at dbPath.
func NewSQLitePersister(dbPath string) (*SQLitePersister, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), CacheDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection serializes writers, which sqlite requires anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLitePersister{db: db, dbPath: dbPath}, nil
}

// Path returns the database file.
func (s *SQLitePersister) Path() string {
	return s.dbPath
}

// Save upserts one entry.
func (s *SQLitePersister) Save(e *Entry, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
INSERT INTO cache_entries (key, kind, repository, package, fetched_at, ttl_ns, size, digest, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    kind = excluded.kind,
    repository = excluded.repository,
    package = excluded.package,
    fetched_at = excluded.fetched_at,
    ttl_ns = excluded.ttl_ns,
    size = excluded.size,
    digest = excluded.digest,
    payload = excluded.payload`,
		e.Key, string(e.Kind), e.Repository, e.Package, e.FetchedAt.UnixNano(), int64(e.TTL), e.Size, e.Digest, payload)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", e.Key, err)
	}
	return nil
}

// Delete removes one entry.
func (s *SQLitePersister) Delete(e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM cache_entries WHERE key = ?", e.Key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", e.Key, err)
	}
	return nil
}

// Load returns every row.
func (s *SQLitePersister) Load() ([]Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT key, kind, repository, package, fetched_at, ttl_ns, size, digest, payload FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	var out []Stored
	for rows.Next() {
		var (
			e         Entry
			kind      string
			fetchedAt int64
			ttl       int64
			payload   []byte
		)
		if err := rows.Scan(&e.Key, &kind, &e.Repository, &e.Package, &fetchedAt, &ttl, &e.Size, &e.Digest, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.FetchedAt = time.Unix(0, fetchedAt)
		e.TTL = time.Duration(ttl)
		out = append(out, Stored{Entry: &e, Payload: payload})
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLitePersister) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
