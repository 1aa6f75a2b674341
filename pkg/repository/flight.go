package repository

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/model"
)

// flight is the context of one shared fetch. It does not belong to any
// caller: it is canceled when the manager closes or when the last caller
// waiting on the key gives up.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// join registers a caller waiting on key and returns the flight context the
// fetch must run with.
func (m *Manager) join(key string) *flight {
	m.flightsMu.Lock()
	defer m.flightsMu.Unlock()
	f, ok := m.flights[key]
	if !ok {
		ctx, cancel := context.WithCancel(m.ctx)
		f = &flight{ctx: ctx, cancel: cancel}
		m.flights[key] = f
	}
	f.waiters++
	return f
}

// leave unregisters a caller. The last one out cancels the flight and makes
// singleflight forget the key, so a later caller starts a new fetch instead
// of inheriting an aborted one.
func (m *Manager) leave(key string, f *flight) {
	m.flightsMu.Lock()
	defer m.flightsMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if m.flights[key] == f {
		delete(m.flights, key)
		m.flight.Forget(key)
	}
}

// fetchShared runs l at most once at a time per cache key; concurrent callers
// for the same key wait for the running fetch and share its result. A caller
// whose ctx ends stops waiting without aborting the fetch for the others.
func (m *Manager) fetchShared(ctx context.Context, repo *config.Repository, l load) (fetched, error) {
	f := m.join(l.key)
	defer m.leave(l.key, f)

	ch := m.flight.DoChan(l.key, func() (any, error) {
		return m.fetchAndStore(f.ctx, repo, l)
	})
	select {
	case <-ctx.Done():
		return fetched{}, errutils.Wrapf(ctx.Err(), "fetch %s", l.key)
	case res := <-ch:
		if res.Err != nil {
			return fetched{}, res.Err
		}
		out := res.Val.(fetched)
		if res.Shared {
			out.records = model.CloneRecords(out.records)
		}
		return out, nil
	}
}

// fetchBatch fetches several packages of one API repository concurrently,
// one Fetcher invocation per distinct name. Each name goes through the
// single-flight group, so a name already being fetched by a query or another
// batch is waited on rather than requested again. The repository's rate
// limiter is the only admission control. Failures stay per name.
func (m *Manager) fetchBatch(ctx context.Context, repo *config.Repository, names []string, force bool) map[string]batchOutcome {
	var (
		mu  sync.Mutex
		g   errgroup.Group
		out = make(map[string]batchOutcome, len(names))
	)
	for _, name := range names {
		if _, dup := out[name]; dup {
			continue
		}
		out[name] = batchOutcome{}
		l := m.packageLoad(repo, name)
		l.force = force
		g.Go(func() error {
			res, err := m.fetchShared(ctx, repo, l)
			mu.Lock()
			out[name] = batchOutcome{records: res.records, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
