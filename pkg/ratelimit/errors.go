package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimitExceeded signals that the per-window request budget is spent.
	// Acquire resolves it by waiting; only TryAcquire returns it.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrConcurrencyLimit signals that every concurrency slot is taken.
	ErrConcurrencyLimit = errors.New("concurrency limit reached")
)

// RetryAfterError carries how long a caller should wait before the window
// admits another request. It unwraps to ErrRateLimitExceeded.
type RetryAfterError struct {
	Repository string
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%s: %s: retry after %s", e.Repository, ErrRateLimitExceeded, e.RetryAfter)
}

func (e *RetryAfterError) Unwrap() error {
	return ErrRateLimitExceeded
}
