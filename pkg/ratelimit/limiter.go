// Package ratelimit gates outbound requests to API repositories. Each
// repository gets a Limiter with two stages checked in order on every attempt:
// a concurrency ceiling, then a sliding per-window request count.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the sliding window requests_per_minute is measured over.
const DefaultWindow = time.Minute

// Limits configures one Limiter. Zero values disable the matching stage.
type Limits struct {
	RequestsPerWindow int
	Concurrent        int
	// Window defaults to DefaultWindow.
	Window time.Duration
}

// Permit is held for the duration of one request. Release is idempotent.
type Permit struct {
	once sync.Once
	l    *Limiter
}

// Release returns the permit's concurrency slot.
func (p *Permit) Release() {
	if p == nil || p.l == nil {
		return
	}
	p.once.Do(p.l.release)
}

// Limiter is the admission gate for one repository.
type Limiter struct {
	name   string
	limits Limits
	now    func() time.Time

	mu       sync.Mutex
	inFlight int
	window   []time.Time
	// changed is closed and replaced whenever a slot frees up
	changed chan struct{}
}

// New creates a limiter for the named repository.
func New(name string, limits Limits) *Limiter {
	if limits.Window <= 0 {
		limits.Window = DefaultWindow
	}
	return &Limiter{
		name:    name,
		limits:  limits,
		now:     time.Now,
		changed: make(chan struct{}),
	}
}

// Name returns the repository the limiter guards.
func (l *Limiter) Name() string {
	return l.name
}

// Limits returns the configured limits.
func (l *Limiter) Limits() Limits {
	return l.limits
}

// TryAcquire attempts admission without waiting. On refusal it returns
// ErrConcurrencyLimit or a *RetryAfterError (which wraps ErrRateLimitExceeded).
func (l *Limiter) TryAcquire() (*Permit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, _, err := l.tryLocked()
	return p, err
}

// Acquire blocks until both stages admit the caller or ctx ends. The internal
// refusals are never returned; only ctx errors are.
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	for {
		l.mu.Lock()
		p, wait, err := l.tryLocked()
		changed := l.changed
		l.mu.Unlock()
		if err == nil {
			return p, nil
		}

		if wait <= 0 {
			// concurrency stage: sleep until a release broadcasts
			select {
			case <-changed:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-changed:
			// a release does not free window budget, but re-checking is cheap
			// and keeps the stage order intact
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// tryLocked runs both stages. wait is the computed delay for a full window and
// zero for a concurrency refusal.
func (l *Limiter) tryLocked() (*Permit, time.Duration, error) {
	if l.limits.Concurrent > 0 && l.inFlight >= l.limits.Concurrent {
		return nil, 0, ErrConcurrencyLimit
	}

	now := l.now()
	if l.limits.RequestsPerWindow > 0 {
		l.purgeLocked(now)
		if len(l.window) >= l.limits.RequestsPerWindow {
			wait := l.limits.Window - now.Sub(l.window[0])
			if wait <= 0 {
				wait = time.Millisecond
			}
			return nil, wait, &RetryAfterError{Repository: l.name, RetryAfter: wait}
		}
		l.window = append(l.window, now)
	}

	l.inFlight++
	return &Permit{l: l}, 0, nil
}

func (l *Limiter) purgeLocked(now time.Time) {
	cutoff := now.Add(-l.limits.Window)
	i := 0
	for i < len(l.window) && !l.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.window = append(l.window[:0], l.window[i:]...)
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	close(l.changed)
	l.changed = make(chan struct{})
	l.mu.Unlock()
}

// State is a point-in-time view of a limiter.
type State struct {
	Repository     string `json:"repository" yaml:"repository"`
	InFlight       int    `json:"in_flight" yaml:"in_flight"`
	WindowRequests int    `json:"window_requests" yaml:"window_requests"`
	Concurrent     int    `json:"concurrent_limit" yaml:"concurrent_limit"`
	PerWindow      int    `json:"requests_per_window" yaml:"requests_per_window"`
}

// State returns the current counters.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purgeLocked(l.now())
	return State{
		Repository:     l.name,
		InFlight:       l.inFlight,
		WindowRequests: len(l.window),
		Concurrent:     l.limits.Concurrent,
		PerWindow:      l.limits.RequestsPerWindow,
	}
}
