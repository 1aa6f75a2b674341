package repository

import (
	"context"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/cache"
	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/fetcher"
	rhttp "github.com/glorpus-work/regindex/pkg/http"
	"github.com/glorpus-work/regindex/pkg/ratelimit"
)

var _ Fetcher = (*fetcher.Fetcher)(nil)

// NewFromConfig loads the repository definitions referenced by cfg and builds
// a manager backed by the configured cache backend. Definitions that fail to
// load are reported through Manager.Disabled and do not fail the call. The
// background sweeper runs every sweep_interval until the manager is closed.
func NewFromConfig(cfg *config.Config, hooks Hooks) (*Manager, error) {
	s := cfg.Settings

	repos := cfg.LoadRepositories()
	if len(repos.Enabled) == 0 {
		logger.Warn("No enabled repositories", logger.Fields{"providers_dir": s.ProvidersDir, "disabled": len(repos.Disabled)})
	}

	persister, err := cache.NewPersister(s.CacheBackend, s.CacheDir)
	if err != nil {
		return nil, errutils.Wrap(err, "failed to open cache backend")
	}
	store, err := openStore(persister, s.StaleGrace)
	if err != nil {
		return nil, err
	}

	client := rhttp.NewHTTPClientWithOptions(rhttp.Options{
		Timeout:   s.HTTPTimeout,
		UserAgent: s.UserAgent,
	})
	limiters := ratelimit.NewRegistry()

	m := NewManager(Options{
		Repositories:  repos.Enabled,
		Disabled:      repos.Disabled,
		Store:         store,
		Fetcher:       fetcher.New(fetcher.Options{Client: client, Limiters: limiters}),
		Limiters:      limiters,
		MaxConcurrent: s.MaxConcurrent,
		QueryTimeout:  s.QueryTimeout,
		ServeStale:    s.ServeStale(),
		Ranking:       s.Ranking,
		Hooks:         hooks,
	})
	m.StartSweeper(context.Background(), s.SweepInterval)
	logger.Debug("Repository manager ready", logger.Fields{
		"repositories": len(repos.Enabled),
		"disabled":     len(repos.Disabled),
		"backend":      s.CacheBackend,
	})
	return m, nil
}

// openStore loads the persisted entries. The persister is released when
// loading fails.
func openStore(persister cache.Persister, grace float64) (*cache.Store, error) {
	store := cache.NewStore(cache.Options{Persister: persister, Grace: grace})
	if err := store.Open(); err != nil {
		_ = store.Close()
		return nil, errutils.Wrap(err, "failed to open cache")
	}
	return store, nil
}
