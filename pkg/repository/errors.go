package repository

import (
	"fmt"
)

// Common repository errors.
var (
	// ErrQueryDeadline is returned when the query deadline expired before every
	// repository answered. The result carries whatever completed.
	ErrQueryDeadline = fmt.Errorf("query deadline exceeded")

	// ErrListUnsupported is returned when listing an API repository.
	ErrListUnsupported = fmt.Errorf("listing is only supported for bulk repositories")

	// ErrNoMatchingRepository is returned when no enabled repository matches the request.
	ErrNoMatchingRepository = fmt.Errorf("no repository matches the request")

	// ErrInvalidConstraint is returned for an unparseable version constraint.
	ErrInvalidConstraint = fmt.Errorf("invalid version constraint")

	// ErrEmptySearch is returned when searching for an empty string.
	ErrEmptySearch = fmt.Errorf("search text cannot be empty")

	// ErrManagerClosed is returned by operations after Close.
	ErrManagerClosed = fmt.Errorf("repository manager is closed")
)

// RepositoryError annotates a query result with the failure of one repository.
// Stale is set when expired cached records were served in its place.
type RepositoryError struct {
	Repository string
	Err        error
	Stale      bool
}

func (e *RepositoryError) Error() string {
	if e.Stale {
		return fmt.Sprintf("repository %s: %v (served stale data)", e.Repository, e.Err)
	}
	return fmt.Sprintf("repository %s: %v", e.Repository, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}
