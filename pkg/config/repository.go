package config

import (
	"time"

	"github.com/glorpus-work/regindex/pkg/adapter"
	"github.com/glorpus-work/regindex/pkg/auth"
	"github.com/glorpus-work/regindex/pkg/ratelimit"
)

// QueryType selects how a repository is fetched.
type QueryType string

// Query types.
const (
	// QueryBulk downloads one index file holding every package.
	QueryBulk QueryType = "bulk_download"
	// QueryAPI asks the registry one package or search term at a time.
	QueryAPI QueryType = "api"
)

// Repository definition defaults.
const (
	DefaultTTLHours            = 24
	DefaultRetryAttempts       = 3
	DefaultRetryBackoffSeconds = 1
)

// RepositoryConfig is one repository definition as written in a file.
type RepositoryConfig struct {
	Name          string           `yaml:"name" toml:"name"`
	Type          string           `yaml:"type" toml:"type"`
	Platform      string           `yaml:"platform,omitempty" toml:"platform"`
	QueryType     QueryType        `yaml:"query_type" toml:"query_type"`
	Priority      int              `yaml:"priority,omitempty" toml:"priority"`
	Enabled       *bool            `yaml:"enabled,omitempty" toml:"enabled"`
	Architectures []string         `yaml:"architectures,omitempty" toml:"architectures"`
	Endpoints     EndpointsConfig  `yaml:"endpoints" toml:"endpoints"`
	Parsing       ParsingConfig    `yaml:"parsing" toml:"parsing"`
	Cache         CacheConfig      `yaml:"cache,omitempty" toml:"cache"`
	RateLimiting  *RateLimitConfig `yaml:"rate_limiting,omitempty" toml:"rate_limiting"`
	Auth          *auth.Config     `yaml:"auth,omitempty" toml:"auth"`
	Metadata      MetadataConfig   `yaml:"metadata,omitempty" toml:"metadata"`

	// Source is the file the definition was read from; empty for inline definitions.
	Source string `yaml:"-" toml:"-"`
}

// EndpointsConfig holds the URL templates of a repository.
type EndpointsConfig struct {
	Packages string `yaml:"packages,omitempty" toml:"packages"`
	Search   string `yaml:"search,omitempty" toml:"search"`
	Info     string `yaml:"info,omitempty" toml:"info"`
	Versions string `yaml:"versions,omitempty" toml:"versions"`
}

// ParsingConfig describes how fetched documents turn into records.
type ParsingConfig struct {
	Format      string            `yaml:"format" toml:"format"`
	Root        string            `yaml:"root,omitempty" toml:"root"`
	Fields      map[string]string `yaml:"fields,omitempty" toml:"fields"`
	Compression string            `yaml:"compression,omitempty" toml:"compression"`
	Script      string            `yaml:"script,omitempty" toml:"script"`
	LinkPattern string            `yaml:"link_pattern,omitempty" toml:"link_pattern"`
}

// CacheConfig controls caching of one repository.
type CacheConfig struct {
	TTLHours  float64 `yaml:"ttl_hours,omitempty" toml:"ttl_hours"`
	MaxSizeMB int64   `yaml:"max_size_mb,omitempty" toml:"max_size_mb"`
}

// RateLimitConfig applies to API repositories.
type RateLimitConfig struct {
	RequestsPerMinute   int     `yaml:"requests_per_minute,omitempty" toml:"requests_per_minute"`
	ConcurrentRequests  int     `yaml:"concurrent_requests,omitempty" toml:"concurrent_requests"`
	RetryAttempts       *int    `yaml:"retry_attempts,omitempty" toml:"retry_attempts"`
	RetryBackoffSeconds float64 `yaml:"retry_backoff_seconds,omitempty" toml:"retry_backoff_seconds"`
	WindowSeconds       float64 `yaml:"window_seconds,omitempty" toml:"window_seconds"`
}

// MetadataConfig carries descriptive flags.
type MetadataConfig struct {
	EOL         bool   `yaml:"eol,omitempty" toml:"eol"`
	Description string `yaml:"description,omitempty" toml:"description"`
}

// IsEnabled reports whether the definition is switched on. Absent means enabled.
func (rc *RepositoryConfig) IsEnabled() bool {
	return rc.Enabled == nil || *rc.Enabled
}

// Repository is a compiled, validated repository definition. It is immutable
// once built and safe to share between goroutines.
type Repository struct {
	Name        string
	Type        string
	Platform    string
	QueryType   QueryType
	Priority    int
	Description string
	EOL         bool
	Source      string

	// Architectures substituted into {arch}; only used when an endpoint references it.
	Architectures []string
	Endpoints     Endpoints
	Parsing       adapter.ParsingSpec

	TTL       time.Duration
	MaxSizeMB int64

	Limits        ratelimit.Limits
	RetryAttempts int
	RetryBackoff  time.Duration

	Auth auth.Authenticator
}

// IsAPI reports whether the repository is queried per package.
func (r *Repository) IsAPI() bool {
	return r.QueryType == QueryAPI
}

// HasSearch reports whether free-text search can be sent to the registry.
func (r *Repository) HasSearch() bool {
	return !r.Endpoints.Search.IsZero()
}

// Disabled records a repository that was not loaded and why.
type Disabled struct {
	Name   string
	Source string
	Reason error
}
