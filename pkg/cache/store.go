// Package cache keeps fetched package records with per-entry TTLs. Entries are
// held in memory behind a read/write mutex and optionally mirrored to disk or
// sqlite so a later process starts warm.
package cache

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/model"
)

// Options configures a Store.
type Options struct {
	// Persister mirrors entries; nil keeps the store memory-only.
	Persister Persister
	// Grace is the TTL multiple after which Sweep evicts. Defaults to DefaultGrace.
	Grace float64
	// Now overrides the clock in tests.
	Now func() time.Time
}

// PutSpec describes an entry to store.
type PutSpec struct {
	Key        string
	Kind       Kind
	Repository string
	Package    string
	Records    []model.PackageRecord
	TTL        time.Duration
	// MaxSizeMB rejects payloads above the limit with a CapacityError. Zero disables it.
	MaxSizeMB int
}

// Store is the TTL cache shared by all repositories.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	refreshing map[string]int
	persister  Persister
	grace      float64
	now        func() time.Time
	closed     bool

	hits, misses, evictions atomic.Uint64
}

// NewStore creates a store. Call Open before use when a persister is set.
func NewStore(opts Options) *Store {
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		entries:    make(map[string]*Entry),
		refreshing: make(map[string]int),
		persister:  opts.Persister,
		grace:      opts.Grace,
		now:        opts.Now,
	}
}

// Open loads persisted entries. Entries whose payload does not match the
// recorded digest, or does not decode, are dropped from the backend.
func (s *Store) Open() error {
	if s.persister == nil {
		return nil
	}
	stored, err := s.persister.Load()
	if err != nil {
		return errutils.Wrap(err, "failed to load cache")
	}

	loaded := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stored {
		e := st.Entry
		if e == nil || e.Key == "" {
			continue
		}
		if digest(st.Payload) != e.Digest {
			logger.Warn("Dropping cache entry with digest mismatch", logger.Fields{
				"key":        e.Key,
				"repository": e.Repository,
				"error":      errutils.ErrFileHashMismatch.Error(),
			})
			_ = s.persister.Delete(e)
			continue
		}
		var records []model.PackageRecord
		if err := json.Unmarshal(st.Payload, &records); err != nil {
			logger.Warn("Dropping undecodable cache entry", logger.Fields{"key": e.Key, "error": err.Error()})
			_ = s.persister.Delete(e)
			continue
		}
		e.Records = records
		e.Size = int64(len(st.Payload))
		if current, ok := s.entries[e.Key]; ok && current.FetchedAt.After(e.FetchedAt) {
			continue
		}
		s.entries[e.Key] = e
		loaded++
	}
	logger.Debug("Cache opened", logger.Fields{"entries": loaded})
	return nil
}

// Close flushes and releases the persister. The in-memory view stays readable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.persister != nil {
		return s.persister.Close()
	}
	return nil
}

// Get returns a copy of the entry under key. It never blocks on I/O.
func (s *Store) Get(key string) (entry Entry, found, expired bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		s.misses.Add(1)
		return Entry{}, false, false
	}
	s.hits.Add(1)
	return e.clone(), true, e.Expired(s.now())
}

// Fresh returns a copy of the entry under key when it exists and has not
// expired. It does not count hits or misses.
func (s *Store) Fresh(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || e.Expired(s.now()) {
		return Entry{}, false
	}
	return e.clone(), true
}

// Put stores spec after a successful fetch, replacing any previous entry under
// the same key. Oversize payloads return a *CapacityError and leave the
// previous entry untouched. A persistence failure keeps the in-memory entry
// and returns an ErrPersist-wrapped error.
func (s *Store) Put(spec PutSpec) error {
	if spec.Key == "" {
		return ErrEmptyKey
	}
	payload, sum, err := encodeRecords(spec.Records)
	if err != nil {
		return errutils.Wrapf(err, "failed to encode cache entry %s", spec.Key)
	}
	size := int64(len(payload))
	if spec.MaxSizeMB > 0 {
		if limit := int64(spec.MaxSizeMB) * bytesPerMB; size > limit {
			return &CapacityError{Repository: spec.Repository, Size: size, Limit: limit}
		}
	}

	ttl := spec.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	entry := &Entry{
		Key:        spec.Key,
		Kind:       spec.Kind,
		Repository: spec.Repository,
		Package:    spec.Package,
		Records:    model.CloneRecords(spec.Records),
		FetchedAt:  s.now(),
		TTL:        ttl,
		Size:       size,
		Digest:     sum,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.entries[spec.Key] = entry
	persister := s.persister
	s.mu.Unlock()

	if persister != nil {
		if err := persister.Save(entry, payload); err != nil {
			return errutils.Wrapf(ErrPersist, "%s: %v", spec.Key, err)
		}
	}
	return nil
}

// Invalidate removes key. Missing keys are ignored.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	if ok {
		s.deletePersisted(e)
	}
}

// InvalidateRepository removes every entry of one repository and returns how
// many were dropped.
func (s *Store) InvalidateRepository(repository string) int {
	s.mu.Lock()
	var dropped []*Entry
	for k, e := range s.entries {
		if e.Repository == repository {
			dropped = append(dropped, e)
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
	for _, e := range dropped {
		s.deletePersisted(e)
	}
	return len(dropped)
}

func (s *Store) deletePersisted(e *Entry) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Delete(e); err != nil {
		logger.Warn("Failed to delete persisted cache entry", logger.Fields{"key": e.Key, "error": err.Error()})
	}
}

// BeginRefresh marks a repository as refreshing; Sweep leaves its entries alone
// until the matching EndRefresh.
func (s *Store) BeginRefresh(repository string) {
	s.mu.Lock()
	s.refreshing[repository]++
	s.mu.Unlock()
}

// EndRefresh clears one BeginRefresh mark.
func (s *Store) EndRefresh(repository string) {
	s.mu.Lock()
	if s.refreshing[repository] <= 1 {
		delete(s.refreshing, repository)
	} else {
		s.refreshing[repository]--
	}
	s.mu.Unlock()
}

// IsRefreshing reports whether a refresh of repository is in progress.
func (s *Store) IsRefreshing(repository string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshing[repository] > 0
}

// Sweep evicts entries older than grace×TTL whose repository is not refreshing.
func (s *Store) Sweep() SweepResult {
	now := s.now()
	var (
		result  SweepResult
		evicted []*Entry
	)

	s.mu.Lock()
	for k, e := range s.entries {
		if !e.Evictable(now, s.grace) {
			continue
		}
		if s.refreshing[e.Repository] > 0 {
			result.Protected++
			continue
		}
		delete(s.entries, k)
		evicted = append(evicted, e)
		result.Evicted = append(result.Evicted, k)
	}
	s.evictions.Add(uint64(len(evicted)))
	result.Remaining = len(s.entries)
	s.mu.Unlock()

	for _, e := range evicted {
		s.deletePersisted(e)
	}
	sort.Strings(result.Evicted)
	if len(evicted) > 0 {
		logger.Debug("Cache sweep evicted entries", logger.Fields{
			"evicted":   len(evicted),
			"protected": result.Protected,
			"remaining": result.Remaining,
		})
	}
	return result
}

// Keys returns every key currently held, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Entries returns copies of every entry held for repository, ordered by key.
// Unlike Get it does not count hits or misses.
func (s *Store) Entries(repository string) []Entry {
	s.mu.RLock()
	out := make([]Entry, 0)
	for _, e := range s.entries {
		if e.Repository == repository {
			out = append(out, e.clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Stats returns a snapshot of entry counts and sizes.
func (s *Store) Stats() Stats {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Hits:         s.hits.Load(),
		Misses:       s.misses.Load(),
		Evictions:    s.evictions.Load(),
		Repositories: make(map[string]RepositoryStats),
	}
	for _, e := range s.entries {
		rs := st.Repositories[e.Repository]
		rs.Entries++
		rs.Records += len(e.Records)
		rs.Bytes += e.Size
		if e.Expired(now) {
			rs.Expired++
			st.Expired++
		}
		if age := e.Age(now); age > rs.OldestAge {
			rs.OldestAge = age
		}
		st.Repositories[e.Repository] = rs
		st.Entries++
		st.Bytes += e.Size
	}
	return st
}
