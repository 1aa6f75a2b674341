package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/cache"
	"github.com/glorpus-work/regindex/pkg/config"
)

// RefreshCache refetches the named repository, or every enabled repository
// when name is empty. Without force, entries that are still fresh are left
// alone, so refreshing twice in quick succession fetches at most once. API
// repositories refetch the packages and searches already in the cache.
// Failures are collected per repository into a *multierror.Error.
func (m *Manager) RefreshCache(ctx context.Context, name string, force bool) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	var targets []*config.Repository
	if name == "" {
		targets = m.order
	} else {
		repo, ok := m.repos[name]
		if !ok {
			return m.unknown(name)
		}
		targets = []*config.Repository{repo}
	}

	var (
		mu   sync.Mutex
		errs *multierror.Error
		g    errgroup.Group
	)
	g.SetLimit(m.maxConcurrent)
	for _, repo := range targets {
		g.Go(func() error {
			if err := m.refreshRepository(ctx, repo, force); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, &RepositoryError{Repository: repo.Name, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		logger.Warn("Refresh finished with errors", logger.Fields{"failed": errs.Len(), "repositories": len(targets)})
		return err
	}
	logger.Debug("Refresh finished", logger.Fields{"repositories": len(targets), "force": force})
	return nil
}

func (m *Manager) refreshRepository(ctx context.Context, repo *config.Repository, force bool) error {
	now := m.now()
	if !repo.IsAPI() {
		l := m.bulkLoad(repo)
		l.force = force
		if !force {
			for _, e := range m.store.Entries(repo.Name) {
				if e.Key == l.key && !e.Expired(now) {
					m.emit(Event{Phase: PhaseCached, Repository: repo.Name, Key: l.key, Records: len(e.Records)})
					return nil
				}
			}
		}
		_, err := m.fetchShared(ctx, repo, l)
		return err
	}

	if force {
		m.forgetNegative(repo.Name)
	}
	var (
		errs  *multierror.Error
		names []string
	)
	for _, e := range m.store.Entries(repo.Name) {
		if !force && !e.Expired(now) {
			continue
		}
		if e.Kind == cache.KindPackage && !strings.HasSuffix(e.Package, versionsSuffix) {
			names = append(names, e.Package)
			continue
		}
		l := m.loadFor(repo, e)
		l.force = force
		if _, err := m.fetchShared(ctx, repo, l); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			errs = multierror.Append(errs, err)
		}
	}
	if len(names) > 0 {
		batch := m.fetchBatch(ctx, repo, names, force)
		for _, name := range names {
			if err := batch[name].err; err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	return errs.ErrorOrNil()
}

// Sweep evicts entries past grace×TTL that are not being refreshed.
func (m *Manager) Sweep() cache.SweepResult {
	res := m.store.Sweep()
	if len(res.Evicted) > 0 {
		logger.Info("Swept cache", logger.Fields{
			"evicted":   len(res.Evicted),
			"protected": res.Protected,
			"remaining": res.Remaining,
		})
	}
	return res
}

// StartSweeper runs Sweep every interval until ctx is done or the manager is
// closed. A non-positive interval does nothing.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.closed.Load() {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Statistics returns cache, fetch and rate limiter figures for every
// repository, plus the disabled ones.
func (m *Manager) Statistics() Stats {
	cs := m.store.Stats()
	states := make(map[string]int)
	limiterStates := m.limiters.States()
	for i, st := range limiterStates {
		states[st.Repository] = i
	}

	out := Stats{Cache: cs}
	for _, repo := range m.order {
		c := m.counter(repo.Name)
		lastErr, lastErrAt := c.lastError()
		rs := RepositoryStats{
			Name:        repo.Name,
			Type:        repo.Type,
			Platform:    repo.Platform,
			QueryType:   string(repo.QueryType),
			Priority:    repo.Priority,
			Fetches:     c.fetches.Load(),
			Failures:    c.failures.Load(),
			LastError:   lastErr,
			LastErrorAt: lastErrAt,
			Refreshing:  m.store.IsRefreshing(repo.Name),
			Cache:       cs.Repositories[repo.Name],
		}
		if i, ok := states[repo.Name]; ok {
			st := limiterStates[i]
			rs.Limiter = &st
		}
		out.Repositories = append(out.Repositories, rs)
	}
	for _, d := range m.disabled {
		reason := ""
		if d.Reason != nil {
			reason = d.Reason.Error()
		}
		out.Disabled = append(out.Disabled, DisabledInfo{Name: d.Name, Source: d.Source, Reason: reason})
	}
	return out
}

// ErrorsOf flattens an error returned by RefreshCache into per-repository errors.
func ErrorsOf(err error) []error {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return merr.WrappedErrors()
	}
	return []error{err}
}
