package fetcher

import (
	"fmt"
	"strings"
)

var (
	// ErrUnexpectedStatus is returned for non-2xx responses that are not retried.
	ErrUnexpectedStatus = fmt.Errorf("unexpected HTTP status")
	// ErrRetriesExhausted is returned when every retry attempt failed.
	ErrRetriesExhausted = fmt.Errorf("retries exhausted")
	// ErrNoEndpoint is returned when a repository lacks the endpoint an operation needs.
	ErrNoEndpoint = fmt.Errorf("endpoint not configured")
	// ErrNotAPIRepository is returned for per-package calls on bulk repositories.
	ErrNotAPIRepository = fmt.Errorf("repository is not an api repository")
)

// FetchError reports a failed fetch for a repository, or for one package of
// it. It unwraps to the cause: an HTTP transport error, ErrUnexpectedStatus,
// errutils.ErrPackageNotFound, a *adapter.ParseError, or ErrRetriesExhausted.
type FetchError struct {
	Repository string
	Package    string
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s", e.Repository)
	if e.Package != "" {
		fmt.Fprintf(&b, "/%s", e.Package)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
