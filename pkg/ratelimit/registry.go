package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry holds one Limiter per API repository.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// Register creates (or replaces) the limiter for a repository.
func (r *Registry) Register(name string, limits Limits) *Limiter {
	l := New(name, limits)
	r.mu.Lock()
	r.limiters[name] = l
	r.mu.Unlock()
	return l
}

// Get returns the limiter for a repository.
func (r *Registry) Get(name string) (*Limiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[name]
	return l, ok
}

// Acquire waits for a permit from the named repository's limiter. Unknown
// repositories are unlimited and get a no-op permit.
func (r *Registry) Acquire(ctx context.Context, name string) (*Permit, error) {
	l, ok := r.Get(name)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &Permit{}, nil
	}
	p, err := l.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire permit for %s: %w", name, err)
	}
	return p, nil
}

// States returns every limiter's state ordered by repository name.
func (r *Registry) States() []State {
	r.mu.RLock()
	out := make([]State, 0, len(r.limiters))
	for _, l := range r.limiters {
		out = append(out, l.State())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Repository < out[j].Repository })
	return out
}
