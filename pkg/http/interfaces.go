//go:generate mockgen -destination=mocks/http.go . Client
package http

import (
	"context"

	"github.com/glorpus-work/regindex/pkg/auth"
)

// Client defines the interface for HTTP operations.
type Client interface {
	// Get fetches rawURL, applying authenticator when it is non-nil.
	// Any HTTP status is returned as a Response; only transport failures are errors.
	Get(ctx context.Context, rawURL string, authenticator auth.Authenticator) (*Response, error)
}
