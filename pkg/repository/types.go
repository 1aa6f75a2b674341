package repository

import (
	"time"

	"github.com/glorpus-work/regindex/pkg/cache"
	"github.com/glorpus-work/regindex/pkg/model"
	"github.com/glorpus-work/regindex/pkg/ratelimit"
)

// Request describes one query. With neither Package nor Text set, bulk
// repositories return their whole listing and API repositories are skipped.
type Request struct {
	// Repositories restricts the query to the named repositories.
	Repositories []string
	// Platform restricts the query to repositories serving that platform.
	Platform string
	// Text is a free-text term matched against names and descriptions.
	Text string
	// Package is an exact package name.
	Package string
	// Version keeps only records with exactly this version.
	Version string
	// VersionConstraint keeps only records satisfying the expression, e.g. ">= 1.2, < 2".
	VersionConstraint string
	// Limit caps the number of merged records; zero means no cap.
	Limit int
}

// PackageResult is the outcome of one name in a GetPackages batch. Record is
// set when Err is nil, and also when Err reports stale data being served.
type PackageResult struct {
	Record *model.PackageRecord
	Err    error
}

// Origin tells where the records of one repository came from.
type Origin string

// Record origins.
const (
	OriginCache   Origin = "cache"
	OriginNetwork Origin = "network"
	OriginStale   Origin = "stale"
)

// Source describes the contribution of one repository to a result.
type Source struct {
	Repository string    `json:"repository" yaml:"repository"`
	Origin     Origin    `json:"origin" yaml:"origin"`
	FetchedAt  time.Time `json:"fetched_at,omitempty" yaml:"fetched_at,omitempty"`
	Records    int       `json:"records" yaml:"records"`
}

// AggregatedResult is the merged, ranked answer of a query. Errors holds one
// annotation per repository that failed; the records of the others are still
// present.
type AggregatedResult struct {
	Records []model.PackageRecord `json:"records" yaml:"records"`
	Errors  []*RepositoryError    `json:"-" yaml:"-"`
	Sources []Source              `json:"sources" yaml:"sources"`
	// Incomplete is set when the query deadline or cancellation cut some
	// repositories short.
	Incomplete bool `json:"incomplete,omitempty" yaml:"incomplete,omitempty"`
}

// Phase is the stage of a fetch reported through Hooks.
type Phase string

// Event phases.
const (
	PhaseFetching Phase = "fetching"
	PhaseCached   Phase = "cached"
	PhaseStale    Phase = "stale"
	PhaseError    Phase = "error"
	PhaseDone     Phase = "done"
)

// Event reports progress of one repository within a query or refresh.
type Event struct {
	Phase      Phase
	Repository string
	Key        string
	Records    int
	Err        error
}

// Hooks receive progress events. OnEvent is called from fetch goroutines and
// must be safe for concurrent use.
type Hooks struct {
	OnEvent func(Event)
}

// RepositoryStats summarizes one enabled repository. LastError is the most
// recent failed fetch, kept after later fetches succeed.
type RepositoryStats struct {
	Name        string                `json:"name" yaml:"name"`
	Type        string                `json:"type" yaml:"type"`
	Platform    string                `json:"platform" yaml:"platform"`
	QueryType   string                `json:"query_type" yaml:"query_type"`
	Priority    int                   `json:"priority" yaml:"priority"`
	Fetches     uint64                `json:"fetches" yaml:"fetches"`
	Failures    uint64                `json:"failures" yaml:"failures"`
	LastError   string                `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	LastErrorAt time.Time             `json:"last_error_at,omitzero" yaml:"last_error_at,omitempty"`
	Refreshing  bool                  `json:"refreshing" yaml:"refreshing"`
	Cache       cache.RepositoryStats `json:"cache" yaml:"cache"`
	Limiter     *ratelimit.State      `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// DisabledInfo is a repository that was not loaded.
type DisabledInfo struct {
	Name   string `json:"name" yaml:"name"`
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	Reason string `json:"reason" yaml:"reason"`
}

// Stats is a snapshot returned by Manager.Statistics.
type Stats struct {
	Cache        cache.Stats       `json:"cache" yaml:"cache"`
	Repositories []RepositoryStats `json:"repositories" yaml:"repositories"`
	Disabled     []DisabledInfo    `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}
