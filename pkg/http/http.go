// Package http is the transport used by the fetcher: a thin net/http wrapper
// that sets the user agent, applies repository authentication, caps response
// sizes and classifies transport failures.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/auth"
	"github.com/glorpus-work/regindex/pkg/errutils"
)

const (
	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "regindex/1.0"
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodySize caps the bytes read from one response.
	DefaultMaxBodySize int64 = 512 << 20
)

var (
	// ErrConnection marks failures where no usable response was received.
	ErrConnection = fmt.Errorf("connection failed")
	// ErrBodyTooLarge is returned when a response exceeds the configured cap.
	ErrBodyTooLarge = fmt.Errorf("response body too large")
	// ErrAuthentication is returned when credentials could not be applied.
	ErrAuthentication = fmt.Errorf("failed to apply authentication")
	// ErrInvalidURL is returned for URLs that cannot form a request.
	ErrInvalidURL = fmt.Errorf("invalid request URL")
)

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RetryAfter parses the Retry-After header, either delta seconds or an HTTP date.
func (r *Response) RetryAfter(now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(r.Header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	d := t.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Options configures an HTTPClient.
type Options struct {
	Timeout     time.Duration
	UserAgent   string
	MaxBodySize int64
	Transport   http.RoundTripper
}

// HTTPClient handles HTTP operations for repositories.
type HTTPClient struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// NewHTTPClient creates a new HTTP client with the default user agent.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return NewHTTPClientWithOptions(Options{Timeout: timeout})
}

// NewHTTPClientWithOptions creates a client, filling zero options with defaults.
func NewHTTPClientWithOptions(opts Options) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		userAgent:   opts.UserAgent,
		maxBodySize: opts.MaxBodySize,
	}
}

// UserAgent returns the configured user agent.
func (hc *HTTPClient) UserAgent() string {
	return hc.userAgent
}

// Get performs a GET request and reads the whole body.
func (hc *HTTPClient) Get(ctx context.Context, rawURL string, authenticator auth.Authenticator) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	req.Header.Set("User-Agent", hc.userAgent)
	req.Header.Set("Accept", "*/*")

	if authenticator != nil {
		if err := authenticator.Apply(req); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
	}

	logger.Debug("HTTP request", logger.Fields{"url": req.URL.Redacted()})

	resp, err := hc.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errutils.Wrap(ctxErr, "request canceled")
		}
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, hc.maxBodySize+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errutils.Wrap(ctxErr, "request canceled")
		}
		return nil, fmt.Errorf("%w: reading response body: %w", ErrConnection, err)
	}
	if int64(len(body)) > hc.maxBodySize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, hc.maxBodySize)
	}

	logger.Debug("HTTP response", logger.Fields{
		"url":    req.URL.Redacted(),
		"status": resp.StatusCode,
		"bytes":  len(body),
	})

	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// IsConnectionError reports whether err is a transport-level failure worth retrying.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}
