package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/cache"
	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/model"
	"github.com/glorpus-work/regindex/pkg/platform"
)

// versionsSuffix marks cache entries holding a package's full version list.
const versionsSuffix = "@versions"

// load describes one cacheable fetch.
type load struct {
	key  string
	kind cache.Kind
	pkg  string
	// force fetches even when another caller refreshed the entry meanwhile.
	force bool
	fetch func(ctx context.Context) ([]model.PackageRecord, error)
}

type fetched struct {
	records   []model.PackageRecord
	fetchedAt time.Time
}

type batchOutcome struct {
	records []model.PackageRecord
	err     error
}

type outcome struct {
	records []model.PackageRecord
	source  Source
	err     *RepositoryError
	skipped bool
}

func (m *Manager) bulkLoad(repo *config.Repository) load {
	return load{
		key:  cache.BulkKey(repo.Name),
		kind: cache.KindBulk,
		fetch: func(ctx context.Context) ([]model.PackageRecord, error) {
			return m.fetcher.FetchBulk(ctx, repo)
		},
	}
}

func (m *Manager) packageLoad(repo *config.Repository, name string) load {
	return load{
		key:  cache.PackageKey(repo.Name, name),
		kind: cache.KindPackage,
		pkg:  name,
		fetch: func(ctx context.Context) ([]model.PackageRecord, error) {
			return m.fetcher.FetchPackage(ctx, repo, name)
		},
	}
}

func (m *Manager) versionsLoad(repo *config.Repository, name string) load {
	return load{
		key:  cache.PackageKey(repo.Name, name+versionsSuffix),
		kind: cache.KindPackage,
		pkg:  name + versionsSuffix,
		fetch: func(ctx context.Context) ([]model.PackageRecord, error) {
			return m.fetcher.FetchVersions(ctx, repo, name)
		},
	}
}

func (m *Manager) searchLoad(repo *config.Repository, text string) load {
	return load{
		key:  cache.SearchKey(repo.Name, text),
		kind: cache.KindSearch,
		pkg:  text,
		fetch: func(ctx context.Context) ([]model.PackageRecord, error) {
			return m.fetcher.Search(ctx, repo, text)
		},
	}
}

// loadFor rebuilds the load that produced a cached entry.
func (m *Manager) loadFor(repo *config.Repository, e cache.Entry) load {
	switch {
	case !repo.IsAPI():
		return m.bulkLoad(repo)
	case e.Kind == cache.KindSearch:
		return m.searchLoad(repo, e.Package)
	case strings.HasSuffix(e.Package, versionsSuffix):
		return m.versionsLoad(repo, strings.TrimSuffix(e.Package, versionsSuffix))
	default:
		return m.packageLoad(repo, e.Package)
	}
}

// Query fans req out to every targeted repository, waits for all of them, and
// returns the merged result. Failing repositories are reported in
// AggregatedResult.Errors and do not fail the query. When the deadline expires
// first the partial result is returned together with an ErrQueryDeadline error.
func (m *Manager) Query(ctx context.Context, req Request) (*AggregatedResult, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	constraint, err := model.ParseConstraint(req.VersionConstraint)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidConstraint, req.VersionConstraint, err)
	}
	targets, err := m.targets(req.Repositories, req.Platform)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && m.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.queryTimeout)
		defer cancel()
	}

	outcomes := make([]outcome, len(targets))
	var g errgroup.Group
	g.SetLimit(m.maxConcurrent)
	for i, repo := range targets {
		g.Go(func() error {
			outcomes[i] = m.queryRepository(ctx, repo, req)
			return nil
		})
	}
	_ = g.Wait()

	result := merge(outcomes, req, constraint, m.ranking, m.priorities)

	if err := ctx.Err(); err != nil {
		result.Incomplete = true
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("Query deadline exceeded, returning partial result", logger.Fields{
				"records": len(result.Records),
				"errors":  len(result.Errors),
			})
			return result, fmt.Errorf("%w: %w", ErrQueryDeadline, err)
		}
		return result, errutils.Wrap(err, "query canceled")
	}
	return result, nil
}

// targets resolves the repositories a request addresses.
func (m *Manager) targets(names []string, target string) ([]*config.Repository, error) {
	var out []*config.Repository
	if len(names) > 0 {
		for _, name := range names {
			repo, ok := m.repos[name]
			if !ok {
				return nil, m.unknown(name)
			}
			if platform.Matches(repo.Platform, target) {
				out = append(out, repo)
			}
		}
	} else {
		for _, repo := range m.order {
			if platform.Matches(repo.Platform, target) {
				out = append(out, repo)
			}
		}
	}
	if len(out) == 0 {
		if len(m.order) == 0 {
			return nil, errutils.ErrNoRepositories
		}
		return nil, ErrNoMatchingRepository
	}
	return out, nil
}

func (m *Manager) unknown(name string) error {
	for _, d := range m.disabled {
		if d.Name == name {
			return fmt.Errorf("%w: %s: %v", errutils.ErrRepositoryDisabled, name, d.Reason)
		}
	}
	return errutils.ErrRepositoryNotFoundWithName(name)
}

func (m *Manager) queryRepository(ctx context.Context, repo *config.Repository, req Request) outcome {
	var l load
	switch {
	case !repo.IsAPI():
		l = m.bulkLoad(repo)
	case req.Package != "":
		l = m.packageLoad(repo, req.Package)
	case req.Text != "" && repo.HasSearch():
		l = m.searchLoad(repo, req.Text)
	case req.Text != "":
		l = m.packageLoad(repo, req.Text)
	default:
		return outcome{skipped: true}
	}

	records, src, err := m.load(ctx, repo, l)
	src.Repository = repo.Name
	out := outcome{source: src}
	if err != nil {
		out.err = &RepositoryError{Repository: repo.Name, Err: err, Stale: src.Origin == OriginStale}
		if !out.err.Stale {
			return out
		}
	}

	if !repo.IsAPI() {
		records = filterBulk(records, req)
	}
	out.records = records
	out.source.Records = len(records)
	return out
}

func filterBulk(records []model.PackageRecord, req Request) []model.PackageRecord {
	switch {
	case req.Package != "":
		out := make([]model.PackageRecord, 0, 1)
		for _, r := range records {
			if r.Name == req.Package {
				out = append(out, r)
			}
		}
		return out
	case req.Text != "":
		text := strings.ToLower(req.Text)
		out := make([]model.PackageRecord, 0)
		for _, r := range records {
			if strings.Contains(strings.ToLower(r.Name), text) ||
				strings.Contains(strings.ToLower(r.Description), text) {
				out = append(out, r)
			}
		}
		return out
	default:
		return records
	}
}

// load returns the records for l: fresh from the cache, stale from the cache
// while a background refresh runs, or fetched. When a fetch fails but an
// expired entry exists, the expired records are returned with the error and
// an OriginStale source.
func (m *Manager) load(ctx context.Context, repo *config.Repository, l load) ([]model.PackageRecord, Source, error) {
	entry, found, expired := m.store.Get(l.key)
	if found && !expired {
		m.emit(Event{Phase: PhaseCached, Repository: repo.Name, Key: l.key, Records: len(entry.Records)})
		return entry.Records, Source{Origin: OriginCache, FetchedAt: entry.FetchedAt}, nil
	}
	if !found && m.isNegative(l) {
		logger.Debug("Package known missing", logger.Fields{"repository": repo.Name, "key": l.key})
		return nil, Source{Origin: OriginCache}, nil
	}
	if found && m.serveStale {
		m.emit(Event{Phase: PhaseStale, Repository: repo.Name, Key: l.key, Records: len(entry.Records)})
		m.refreshInBackground(repo, l)
		return entry.Records, Source{Origin: OriginStale, FetchedAt: entry.FetchedAt}, nil
	}

	res, err := m.fetchShared(ctx, repo, l)
	if err != nil {
		if found {
			logger.Warn("Fetch failed, serving expired cache entry", logger.Fields{
				"repository": repo.Name,
				"key":        l.key,
				"error":      err.Error(),
			})
			return entry.Records, Source{Origin: OriginStale, FetchedAt: entry.FetchedAt}, err
		}
		return nil, Source{Origin: OriginNetwork}, err
	}
	return res.records, Source{Origin: OriginNetwork, FetchedAt: res.fetchedAt}, nil
}

// refreshInBackground refetches l detached from the caller.
func (m *Manager) refreshInBackground(repo *config.Repository, l load) {
	if m.closed.Load() {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.fetchShared(m.ctx, repo, l); err != nil && m.ctx.Err() == nil {
			logger.Warn("Background refresh failed", logger.Fields{
				"repository": repo.Name,
				"key":        l.key,
				"error":      err.Error(),
			})
		}
	}()
}

func (m *Manager) fetchAndStore(ctx context.Context, repo *config.Repository, l load) (fetched, error) {
	if !l.force {
		// a flight for the same key may have completed since the caller
		// found the entry missing or expired
		if e, ok := m.store.Fresh(l.key); ok {
			return fetched{records: e.Records, fetchedAt: e.FetchedAt}, nil
		}
	}

	m.store.BeginRefresh(repo.Name)
	defer m.store.EndRefresh(repo.Name)

	c := m.counter(repo.Name)
	c.fetches.Add(1)
	m.emit(Event{Phase: PhaseFetching, Repository: repo.Name, Key: l.key})

	records, err := l.fetch(ctx)
	if err != nil {
		if l.kind == cache.KindPackage && errors.Is(err, errutils.ErrPackageNotFound) {
			m.markNegative(l)
			m.store.Invalidate(l.key)
			m.emit(Event{Phase: PhaseDone, Repository: repo.Name, Key: l.key})
			return fetched{fetchedAt: m.now()}, nil
		}
		if ctx.Err() == nil {
			c.fail(err, m.now())
		}
		m.emit(Event{Phase: PhaseError, Repository: repo.Name, Key: l.key, Err: err})
		return fetched{}, err
	}

	spec := cache.PutSpec{
		Key:        l.key,
		Kind:       l.kind,
		Repository: repo.Name,
		Package:    l.pkg,
		Records:    records,
		TTL:        repo.TTL,
	}
	if l.kind == cache.KindBulk {
		spec.MaxSizeMB = int(repo.MaxSizeMB)
	}
	if err := m.store.Put(spec); err != nil {
		var capErr *cache.CapacityError
		if errors.As(err, &capErr) {
			logger.Warn("Listing exceeds max_size_mb, serving without caching", logger.Fields{
				"repository": repo.Name,
				"size":       capErr.Size,
				"limit":      capErr.Limit,
			})
		} else {
			logger.Warn("Failed to cache records", logger.Fields{"repository": repo.Name, "key": l.key, "error": err.Error()})
		}
	}

	m.emit(Event{Phase: PhaseDone, Repository: repo.Name, Key: l.key, Records: len(records)})
	logger.Debug("Fetched records", logger.Fields{"repository": repo.Name, "key": l.key, "records": len(records)})
	return fetched{records: records, fetchedAt: m.now()}, nil
}

func (m *Manager) isNegative(l load) bool {
	if m.negative == nil || l.kind != cache.KindPackage {
		return false
	}
	return m.negative.Contains(l.key)
}

func (m *Manager) markNegative(l load) {
	if m.negative != nil {
		m.negative.Add(l.key, struct{}{})
	}
}

// forgetNegative drops every negative entry of a repository.
func (m *Manager) forgetNegative(repository string) {
	if m.negative == nil {
		return
	}
	prefix := cache.PackageKey(repository, "")
	for _, key := range m.negative.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.negative.Remove(key)
		}
	}
}
