// Package repository answers package queries across every configured
// repository. It serves fresh data from the cache store, fetches missing or
// expired entries concurrently, collapses identical in-flight fetches, and
// merges the per-repository answers into one ranked result.
package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/cache"
	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/ratelimit"
)

// Defaults applied by NewManager.
const (
	DefaultMaxConcurrent = config.DefaultMaxConcurrent
	DefaultQueryTimeout  = config.DefaultQueryTimeout
	DefaultNegativeTTL   = 5 * time.Minute
	DefaultNegativeSize  = 1024
)

// Options configures a Manager.
type Options struct {
	Repositories []*config.Repository
	Disabled     []config.Disabled
	// Store defaults to a memory-only store.
	Store   *cache.Store
	Fetcher Fetcher
	// Limiters receives one limiter per API repository. A nil registry is created.
	Limiters *ratelimit.Registry

	MaxConcurrent int
	// QueryTimeout applies when the caller's context has no deadline. Negative disables it.
	QueryTimeout time.Duration
	// ServeStale returns expired entries immediately and refreshes them in the background.
	ServeStale bool
	// Ranking is one of config.RankingPolicies; empty means score.
	Ranking string
	// NegativeTTL is how long a package reported missing is not asked for
	// again. Negative disables negative caching.
	NegativeTTL time.Duration

	Hooks Hooks
	Now   func() time.Time
}

type counters struct {
	fetches  atomic.Uint64
	failures atomic.Uint64

	mu        sync.Mutex
	lastErr   string
	lastErrAt time.Time
}

// fail counts a failed fetch and remembers it as the latest error.
func (c *counters) fail(err error, at time.Time) {
	c.failures.Add(1)
	c.mu.Lock()
	c.lastErr = err.Error()
	c.lastErrAt = at
	c.mu.Unlock()
}

func (c *counters) lastError() (string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr, c.lastErrAt
}

// Manager is the query front of regindex. It is safe for concurrent use.
type Manager struct {
	repos    map[string]*config.Repository
	order    []*config.Repository
	disabled []config.Disabled

	store    *cache.Store
	fetcher  Fetcher
	limiters *ratelimit.Registry
	flight   singleflight.Group
	// flights holds the context of every fetch running in flight, by key.
	flights   map[string]*flight
	flightsMu sync.Mutex
	negative *expirable.LRU[string, struct{}]
	counters map[string]*counters
	// priorities maps repository name to its configured priority.
	priorities map[string]int

	maxConcurrent int
	queryTimeout  time.Duration
	serveStale    bool
	ranking       string
	hooks         Hooks
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewManager creates a manager over already compiled repositories and
// registers a rate limiter for every API repository.
func NewManager(opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = cache.NewStore(cache.Options{Now: opts.Now})
	}
	if opts.Limiters == nil {
		opts.Limiters = ratelimit.NewRegistry()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if opts.Ranking == "" {
		opts.Ranking = config.RankingScore
	}
	if opts.NegativeTTL == 0 {
		opts.NegativeTTL = DefaultNegativeTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		repos:         make(map[string]*config.Repository, len(opts.Repositories)),
		disabled:      opts.Disabled,
		store:         opts.Store,
		fetcher:       opts.Fetcher,
		limiters:      opts.Limiters,
		flights:       make(map[string]*flight),
		counters:      make(map[string]*counters, len(opts.Repositories)),
		priorities:    make(map[string]int, len(opts.Repositories)),
		maxConcurrent: opts.MaxConcurrent,
		queryTimeout:  opts.QueryTimeout,
		serveStale:    opts.ServeStale,
		ranking:       opts.Ranking,
		hooks:         opts.Hooks,
		now:           opts.Now,
	}
	if opts.NegativeTTL > 0 {
		m.negative = expirable.NewLRU[string, struct{}](DefaultNegativeSize, nil, opts.NegativeTTL)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	for _, repo := range opts.Repositories {
		if _, dup := m.repos[repo.Name]; dup {
			logger.Warn("Ignoring duplicate repository", logger.Fields{"repository": repo.Name})
			continue
		}
		m.repos[repo.Name] = repo
		m.order = append(m.order, repo)
		m.counters[repo.Name] = &counters{}
		m.priorities[repo.Name] = repo.Priority
		if repo.IsAPI() {
			m.limiters.Register(repo.Name, repo.Limits)
		}
	}
	sort.Slice(m.order, func(i, j int) bool { return m.order[i].Name < m.order[j].Name })

	return m
}

// Repositories returns the enabled repositories ordered by name.
func (m *Manager) Repositories() []*config.Repository {
	out := make([]*config.Repository, len(m.order))
	copy(out, m.order)
	return out
}

// Repository returns one enabled repository.
func (m *Manager) Repository(name string) (*config.Repository, bool) {
	repo, ok := m.repos[name]
	return repo, ok
}

// Disabled returns the repositories that failed to load or were switched off.
func (m *Manager) Disabled() []config.Disabled {
	out := make([]config.Disabled, len(m.disabled))
	copy(out, m.disabled)
	return out
}

// Store exposes the cache store backing the manager.
func (m *Manager) Store() *cache.Store {
	return m.store
}

// Close stops background refreshes and the sweeper, waits for them, and
// closes the cache store.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.cancel()
	m.wg.Wait()
	return m.store.Close()
}

func (m *Manager) emit(ev Event) {
	if m.hooks.OnEvent != nil {
		m.hooks.OnEvent(ev)
	}
}

func (m *Manager) counter(repository string) *counters {
	if c, ok := m.counters[repository]; ok {
		return c
	}
	return &counters{}
}
