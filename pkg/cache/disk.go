package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/fsutil"
)

// DiskPersister stores each entry as a JSON payload plus a .meta.json sidecar:
//
//	<dir>/<repo>/bulk.payload.json
//	<dir>/<repo>/packages/<name>.payload.json
//	<dir>/<repo>/search/<query>.payload.json
//
// Repository, package and query names are path-escaped. Neither suffix ends
// with the other, so a name such as "foo.meta" cannot land on the sidecar of
// "foo". Every write goes to a
// temp file that is renamed into place.
type DiskPersister struct {
	dir string
}

// NewDiskPersister creates the cache directory if needed.
func NewDiskPersister(dir string) (*DiskPersister, error) {
	if dir == "" {
		return nil, ErrCacheDirectory
	}
	if err := os.MkdirAll(dir, CacheDirPerm); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheDirectory, err)
	}
	return &DiskPersister{dir: dir}, nil
}

// Dir returns the root directory.
func (d *DiskPersister) Dir() string {
	return d.dir
}

func (d *DiskPersister) payloadPath(e *Entry) string {
	repoDir := filepath.Join(d.dir, fsutil.EscapeName(e.Repository))
	switch e.Kind {
	case KindPackage:
		return filepath.Join(repoDir, packagesDir, fsutil.EscapeName(e.Package)+payloadSuffix)
	case KindSearch:
		return filepath.Join(repoDir, searchDir, fsutil.EscapeName(e.Package)+payloadSuffix)
	default:
		return filepath.Join(repoDir, bulkFile)
	}
}

func metaPath(payloadPath string) string {
	return strings.TrimSuffix(payloadPath, payloadSuffix) + metaSuffix
}

// Save writes the payload first and the sidecar second, so a sidecar always
// describes a complete payload.
func (d *DiskPersister) Save(e *Entry, payload []byte) error {
	path := d.payloadPath(e)
	m, err := json.MarshalIndent(e.meta(), "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, payload, fsutil.FileModeDefault); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(metaPath(path), m, fsutil.FileModeDefault)
}

// Delete removes an entry's payload and sidecar.
func (d *DiskPersister) Delete(e *Entry) error {
	path := d.payloadPath(e)
	var errs []error
	for _, p := range []string{metaPath(path), path} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load reads every sidecar below the directory together with its payload.
// Orphaned or unreadable files are skipped with a warning.
func (d *DiskPersister) Load() ([]Stored, error) {
	var out []Stored
	err := filepath.WalkDir(d.dir, func(path string, de fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if de.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Skipping unreadable cache sidecar", logger.Fields{"path": path, "error": err.Error()})
			return nil
		}
		var m meta
		if err := json.Unmarshal(raw, &m); err != nil {
			logger.Warn("Skipping corrupt cache sidecar", logger.Fields{"path": path, "error": err.Error()})
			return nil
		}
		payloadPath := strings.TrimSuffix(path, metaSuffix) + payloadSuffix
		payload, err := os.ReadFile(payloadPath)
		if err != nil {
			logger.Warn("Skipping cache entry without payload", logger.Fields{"path": payloadPath, "key": m.Key})
			return nil
		}
		out = append(out, Stored{Entry: m.entry(), Payload: payload})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk cache directory %s: %w", d.dir, err)
	}
	return out, nil
}

// Close is a no-op; every Save is already durable.
func (d *DiskPersister) Close() error {
	return nil
}
