// Package fetcher retrieves repository payloads over HTTP and turns them into
// records. Bulk repositories are downloaded whole, once per architecture; API
// repositories are queried per package or search term behind the repository's
// rate limiter, retrying 429 responses and connection failures with
// exponential backoff. The fetcher never caches.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/adapter"
	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/errutils"
	rhttp "github.com/glorpus-work/regindex/pkg/http"
	"github.com/glorpus-work/regindex/pkg/model"
	"github.com/glorpus-work/regindex/pkg/ratelimit"
)

// DefaultMaxBackoff caps a single retry delay.
const DefaultMaxBackoff = 5 * time.Minute

// Options configures a Fetcher.
type Options struct {
	Client   rhttp.Client
	Limiters *ratelimit.Registry
	// MaxBackoff defaults to DefaultMaxBackoff.
	MaxBackoff time.Duration
	// Now and Sleep are replaceable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Fetcher runs bulk and API fetches.
type Fetcher struct {
	client     rhttp.Client
	limiters   *ratelimit.Registry
	maxBackoff time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a fetcher. A nil client gets a default HTTP client and a nil
// registry leaves every repository unlimited.
func New(opts Options) *Fetcher {
	if opts.Client == nil {
		opts.Client = rhttp.NewHTTPClient(rhttp.DefaultTimeout)
	}
	if opts.Limiters == nil {
		opts.Limiters = ratelimit.NewRegistry()
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Fetcher{
		client:     opts.Client,
		limiters:   opts.Limiters,
		maxBackoff: opts.MaxBackoff,
		now:        opts.Now,
		sleep:      opts.Sleep,
	}
}

// FetchBulk downloads and parses the packages endpoint once per architecture
// and concatenates the records in architecture order. Any failure discards
// everything fetched so far.
func (f *Fetcher) FetchBulk(ctx context.Context, repo *config.Repository) ([]model.PackageRecord, error) {
	tmpl := repo.Endpoints.Packages
	if tmpl.IsZero() {
		return nil, &FetchError{Repository: repo.Name, Err: errutils.Wrap(ErrNoEndpoint, "packages")}
	}

	archs := []string{""}
	if tmpl.Has(config.PlaceholderArch) {
		archs = repo.Architectures
	}

	var all []model.PackageRecord
	for _, arch := range archs {
		url := tmpl.Expand(map[string]string{config.PlaceholderArch: arch})
		logger.Debug("Fetching bulk index", logger.Fields{"repository": repo.Name, "url": url, "arch": arch})

		resp, err := f.client.Get(ctx, url, repo.Auth)
		if err != nil {
			return nil, &FetchError{Repository: repo.Name, URL: url, Attempts: 1, Err: err}
		}
		if !resp.OK() {
			return nil, &FetchError{
				Repository: repo.Name,
				URL:        url,
				StatusCode: resp.StatusCode,
				Attempts:   1,
				Err:        statusError(resp.StatusCode),
			}
		}

		records, err := adapter.Parse(resp.Body, repo.Parsing)
		if err != nil {
			return nil, &FetchError{Repository: repo.Name, URL: url, StatusCode: resp.StatusCode, Attempts: 1, Err: err}
		}
		if arch != "" {
			for i := range records {
				if _, ok := records[i].ExtraValue("arch"); !ok {
					records[i] = records[i].WithExtra("arch", arch)
				}
			}
		}
		all = append(all, records...)
	}

	logger.Debug("Bulk index parsed", logger.Fields{"repository": repo.Name, "records": len(all)})
	return stamp(repo, all), nil
}

// FetchPackage queries the info endpoint for one package. A 404 is reported
// as a FetchError wrapping errutils.ErrPackageNotFound.
func (f *Fetcher) FetchPackage(ctx context.Context, repo *config.Repository, name string) ([]model.PackageRecord, error) {
	tmpl := repo.Endpoints.Info
	if tmpl.IsZero() {
		// search-only registries answer package lookups through search
		records, err := f.Search(ctx, repo, name)
		if err != nil {
			return nil, err
		}
		exact := records[:0:0]
		for _, r := range records {
			if r.Name == name {
				exact = append(exact, r)
			}
		}
		if len(exact) == 0 {
			return nil, &FetchError{Repository: repo.Name, Package: name, Err: errutils.ErrPackageNotFoundIn(repo.Name, name)}
		}
		return exact, nil
	}
	return f.fetchAPI(ctx, repo, name, tmpl, map[string]string{config.PlaceholderPackage: name})
}

// Search sends free text to the search endpoint.
func (f *Fetcher) Search(ctx context.Context, repo *config.Repository, text string) ([]model.PackageRecord, error) {
	tmpl := repo.Endpoints.Search
	if tmpl.IsZero() {
		return nil, &FetchError{Repository: repo.Name, Err: errutils.Wrap(ErrNoEndpoint, "search")}
	}
	records, err := f.fetchAPI(ctx, repo, "", tmpl, map[string]string{config.PlaceholderQuery: text})
	if errors.Is(err, errutils.ErrPackageNotFound) {
		// an empty search is not a failure
		return nil, nil
	}
	return records, err
}

// FetchVersions queries the versions endpoint, falling back to info.
func (f *Fetcher) FetchVersions(ctx context.Context, repo *config.Repository, name string) ([]model.PackageRecord, error) {
	tmpl := repo.Endpoints.Versions
	if tmpl.IsZero() {
		return f.FetchPackage(ctx, repo, name)
	}
	return f.fetchAPI(ctx, repo, name, tmpl, map[string]string{config.PlaceholderPackage: name})
}

func (f *Fetcher) fetchAPI(ctx context.Context, repo *config.Repository, pkg string, tmpl config.Template, values map[string]string) ([]model.PackageRecord, error) {
	if !repo.IsAPI() {
		return nil, &FetchError{Repository: repo.Name, Package: pkg, Err: ErrNotAPIRepository}
	}
	url := tmpl.Expand(values)
	fields := logger.Fields{"repository": repo.Name, "url": url}
	if pkg != "" {
		fields["package"] = pkg
	}

	var lastErr error
	lastStatus := 0
	attempts := 0
	for attempt := 0; attempt <= repo.RetryAttempts; attempt++ {
		attempts++
		resp, err := f.attempt(ctx, repo, url)

		var retryAfter time.Duration
		switch {
		case err != nil && rhttp.IsConnectionError(err):
			lastErr, lastStatus = err, 0
		case err != nil:
			return nil, &FetchError{Repository: repo.Name, Package: pkg, URL: url, Attempts: attempts, Err: err}
		case resp.OK():
			records, err := adapter.Parse(resp.Body, repo.Parsing)
			if err != nil {
				return nil, &FetchError{Repository: repo.Name, Package: pkg, URL: url, StatusCode: resp.StatusCode, Attempts: attempts, Err: err}
			}
			return stamp(repo, records), nil
		case resp.StatusCode == http.StatusNotFound:
			notFound := errutils.ErrPackageNotFoundIn(repo.Name, pkg)
			return nil, &FetchError{Repository: repo.Name, Package: pkg, URL: url, StatusCode: resp.StatusCode, Attempts: attempts, Err: notFound}
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &ratelimit.RetryAfterError{Repository: repo.Name}
			lastStatus = resp.StatusCode
			if d, ok := resp.RetryAfter(f.now()); ok {
				retryAfter = d
				lastErr = &ratelimit.RetryAfterError{Repository: repo.Name, RetryAfter: d}
			}
		default:
			return nil, &FetchError{
				Repository: repo.Name,
				Package:    pkg,
				URL:        url,
				StatusCode: resp.StatusCode,
				Attempts:   attempts,
				Err:        statusError(resp.StatusCode),
			}
		}

		if attempt == repo.RetryAttempts {
			break
		}
		delay := f.backoff(repo.RetryBackoff, attempt, retryAfter)
		logger.Debug("Retrying request", fields, logger.Fields{
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   lastErr.Error(),
		})
		if err := f.sleep(ctx, delay); err != nil {
			return nil, &FetchError{Repository: repo.Name, Package: pkg, URL: url, StatusCode: lastStatus, Attempts: attempts, Err: err}
		}
	}

	logger.Warn("Giving up on request", fields, logger.Fields{"attempts": attempts})
	return nil, &FetchError{
		Repository: repo.Name,
		Package:    pkg,
		URL:        url,
		StatusCode: lastStatus,
		Attempts:   attempts,
		Err:        fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr),
	}
}

// attempt holds a permit only for the duration of the request itself.
func (f *Fetcher) attempt(ctx context.Context, repo *config.Repository, url string) (*rhttp.Response, error) {
	permit, err := f.limiters.Acquire(ctx, repo.Name)
	if err != nil {
		return nil, err
	}
	defer permit.Release()
	return f.client.Get(ctx, url, repo.Auth)
}

// backoff is base * 2^attempt, raised to retryAfter, capped at maxBackoff.
func (f *Fetcher) backoff(base time.Duration, attempt int, retryAfter time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < f.maxBackoff; i++ {
		d *= 2
	}
	if retryAfter > d {
		d = retryAfter
	}
	if d > f.maxBackoff {
		d = f.maxBackoff
	}
	return d
}

func statusError(code int) error {
	return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, code, http.StatusText(code))
}

func stamp(repo *config.Repository, records []model.PackageRecord) []model.PackageRecord {
	for i := range records {
		records[i] = records[i].WithRepository(repo.Name, repo.Type, repo.EOL)
	}
	return records
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
