package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/glorpus-work/regindex/pkg/adapter"
	"github.com/glorpus-work/regindex/pkg/auth"
	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/fieldpath"
	"github.com/glorpus-work/regindex/pkg/platform"
	"github.com/glorpus-work/regindex/pkg/ratelimit"
)

// Compile validates a definition and builds its Repository. Every failure is
// a *ConfigError naming the offending field.
func Compile(rc *RepositoryConfig) (*Repository, error) {
	if rc == nil {
		return nil, newConfigError("", "", errutils.ErrConfigValidation)
	}
	name := strings.TrimSpace(rc.Name)
	if name == "" {
		return nil, newConfigError("", "name", errutils.ErrEmptyRepositoryName)
	}
	fail := func(field string, err error) (*Repository, error) {
		return nil, newConfigError(name, field, err)
	}

	repo := &Repository{
		Name:        name,
		Type:        strings.ToLower(strings.TrimSpace(rc.Type)),
		Priority:    rc.Priority,
		Description: rc.Metadata.Description,
		EOL:         rc.Metadata.EOL,
		Source:      rc.Source,
	}

	if rc.Platform != "" && !platform.IsValid(rc.Platform) {
		return fail("platform", fmt.Errorf("%w: %q, must be one of: %s", ErrInvalidPlatform, rc.Platform, strings.Join(platform.ValidPlatforms(), ", ")))
	}
	repo.Platform = platform.Normalize(rc.Platform)

	switch QueryType(strings.ToLower(string(rc.QueryType))) {
	case QueryBulk:
		repo.QueryType = QueryBulk
	case QueryAPI:
		repo.QueryType = QueryAPI
	default:
		return fail("query_type", fmt.Errorf("%w: %q, must be one of: bulk_download, api", ErrInvalidQueryType, rc.QueryType))
	}

	var err error
	if repo.Endpoints, err = compileEndpoints(rc.Endpoints); err != nil {
		return fail("endpoints", err)
	}
	switch repo.QueryType {
	case QueryBulk:
		if repo.Endpoints.Packages.IsZero() {
			return fail("endpoints.packages", fmt.Errorf("%w: bulk_download repositories require packages", ErrMissingEndpoint))
		}
	case QueryAPI:
		if repo.Endpoints.Search.IsZero() && repo.Endpoints.Info.IsZero() {
			return fail("endpoints", fmt.Errorf("%w: api repositories require search or info", ErrMissingEndpoint))
		}
	}

	if repo.Architectures, err = compileArchitectures(rc.Architectures, repo.Type); err != nil {
		return fail("architectures", err)
	}

	field, err := compileParsing(name, rc.Parsing, &repo.Parsing)
	if err != nil {
		return fail(field, err)
	}

	if rc.Cache.TTLHours < 0 {
		return fail("cache.ttl_hours", fmt.Errorf("%w: ttl_hours cannot be negative", ErrInvalidCache))
	}
	if rc.Cache.MaxSizeMB < 0 {
		return fail("cache.max_size_mb", fmt.Errorf("%w: max_size_mb cannot be negative", ErrInvalidCache))
	}
	ttlHours := rc.Cache.TTLHours
	if ttlHours == 0 {
		ttlHours = DefaultTTLHours
	}
	repo.TTL = time.Duration(ttlHours * float64(time.Hour))
	if repo.QueryType == QueryBulk {
		repo.MaxSizeMB = rc.Cache.MaxSizeMB
	}

	if field, err := compileRateLimit(rc.RateLimiting, repo); err != nil {
		return fail(field, err)
	}

	var authCfg auth.Config
	if rc.Auth != nil {
		authCfg = *rc.Auth
	}
	if repo.Auth, err = auth.New(authCfg); err != nil {
		return fail("auth", fmt.Errorf("%w: %w", ErrInvalidAuth, err))
	}

	return repo, nil
}

func compileEndpoints(ec EndpointsConfig) (Endpoints, error) {
	var (
		out Endpoints
		err error
	)
	if out.Packages, err = ParseTemplate(ec.Packages); err != nil {
		return Endpoints{}, fmt.Errorf("packages: %w", err)
	}
	if out.Search, err = ParseTemplate(ec.Search); err != nil {
		return Endpoints{}, fmt.Errorf("search: %w", err)
	}
	if out.Info, err = ParseTemplate(ec.Info); err != nil {
		return Endpoints{}, fmt.Errorf("info: %w", err)
	}
	if out.Versions, err = ParseTemplate(ec.Versions); err != nil {
		return Endpoints{}, fmt.Errorf("versions: %w", err)
	}
	return out, nil
}

// compileArchitectures keeps configured spellings verbatim; registries disagree
// on names, so {arch} gets exactly what the definition says. The default is
// the host architecture, in Debian spelling for apt repositories.
func compileArchitectures(archs []string, repoType string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, a := range archs {
		a = strings.TrimSpace(a)
		if a == "" {
			return nil, fmt.Errorf("%w: empty architecture", ErrInvalidArch)
		}
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	if len(out) > 0 {
		return out, nil
	}
	if repoType == "apt" || repoType == "deb" || repoType == "debian" {
		return []string{platform.DebianArch(platform.CurrentArch())}, nil
	}
	return []string{platform.CurrentArch()}, nil
}

// compileParsing fills spec and returns the failing field name on error.
func compileParsing(name string, pc ParsingConfig, spec *adapter.ParsingSpec) (string, error) {
	spec.Repository = name

	format := adapter.Format(strings.ToLower(strings.TrimSpace(pc.Format)))
	if !adapter.IsKnownFormat(format) {
		formats := make([]string, 0, len(adapter.Formats()))
		for _, f := range adapter.Formats() {
			formats = append(formats, string(f))
		}
		return "parsing.format", fmt.Errorf("%w: %q, must be one of: %s", ErrInvalidFormat, pc.Format, strings.Join(formats, ", "))
	}
	spec.Format = format

	compression, err := adapter.ParseCompression(pc.Compression)
	if err != nil {
		return "parsing.compression", fmt.Errorf("%w: %w", ErrInvalidCompression, err)
	}
	spec.Compression = compression

	if spec.Root, err = fieldpath.Compile(pc.Root); err != nil {
		return "parsing.root", fmt.Errorf("%w: %w", ErrInvalidFieldPath, err)
	}

	keys := make([]string, 0, len(pc.Fields))
	for k := range pc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	spec.Fields = make(map[string]fieldpath.Path, len(pc.Fields))
	for _, k := range keys {
		p, err := fieldpath.Compile(pc.Fields[k])
		if err != nil {
			return "parsing.fields." + k, fmt.Errorf("%w: %w", ErrInvalidFieldPath, err)
		}
		spec.Fields[strings.ToLower(k)] = p
	}

	// json and xml have no implicit name key, so the mapping must provide one
	if format == adapter.FormatJSON || format == adapter.FormatXML {
		if _, ok := spec.Fields[adapter.FieldName]; !ok {
			return "parsing.fields", ErrMissingNameField
		}
	}

	spec.Script = pc.Script
	if pc.Script != "" && format != adapter.FormatGeneric {
		return "parsing.script", fmt.Errorf("%w: script is only used by the generic format", ErrInvalidFormat)
	}

	if pc.LinkPattern != "" {
		if format != adapter.FormatHTML {
			return "parsing.link_pattern", fmt.Errorf("%w: link_pattern is only used by the html format", ErrInvalidLinkPattern)
		}
		re, err := regexp.Compile(pc.LinkPattern)
		if err != nil {
			return "parsing.link_pattern", fmt.Errorf("%w: %w", ErrInvalidLinkPattern, err)
		}
		if re.NumSubexp() == 0 {
			return "parsing.link_pattern", fmt.Errorf("%w: pattern needs a capture group for the package name", ErrInvalidLinkPattern)
		}
		spec.LinkPattern = re
	}
	return "", nil
}

func compileRateLimit(rl *RateLimitConfig, repo *Repository) (string, error) {
	repo.RetryAttempts = DefaultRetryAttempts
	repo.RetryBackoff = DefaultRetryBackoffSeconds * time.Second
	if rl == nil {
		return "", nil
	}
	if !repo.IsAPI() {
		return "rate_limiting", fmt.Errorf("%w: only api repositories are rate limited", ErrInvalidRateLimit)
	}
	switch {
	case rl.RequestsPerMinute < 0:
		return "rate_limiting.requests_per_minute", fmt.Errorf("%w: cannot be negative", ErrInvalidRateLimit)
	case rl.ConcurrentRequests < 0:
		return "rate_limiting.concurrent_requests", fmt.Errorf("%w: cannot be negative", ErrInvalidRateLimit)
	case rl.RetryAttempts != nil && *rl.RetryAttempts < 0:
		return "rate_limiting.retry_attempts", fmt.Errorf("%w: cannot be negative", ErrInvalidRateLimit)
	case rl.RetryBackoffSeconds < 0:
		return "rate_limiting.retry_backoff_seconds", fmt.Errorf("%w: cannot be negative", ErrInvalidRateLimit)
	case rl.WindowSeconds < 0:
		return "rate_limiting.window_seconds", fmt.Errorf("%w: cannot be negative", ErrInvalidRateLimit)
	}

	repo.Limits = ratelimit.Limits{
		RequestsPerWindow: rl.RequestsPerMinute,
		Concurrent:        rl.ConcurrentRequests,
		Window:            time.Duration(rl.WindowSeconds * float64(time.Second)),
	}
	if rl.RetryAttempts != nil {
		repo.RetryAttempts = *rl.RetryAttempts
	}
	if rl.RetryBackoffSeconds > 0 {
		repo.RetryBackoff = time.Duration(rl.RetryBackoffSeconds * float64(time.Second))
	}
	return "", nil
}
