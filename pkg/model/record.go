// Package model defines the normalized package record every repository format
// is mapped onto, plus version and package-reference helpers.
package model

import (
	"encoding/json"
	"maps"
)

// PackageRecord is one package (at one version) as published by one repository.
// Records are values: the scalar fields are copied on assignment and the extra
// map is only reachable through copying accessors, so a record handed out by the
// cache cannot be mutated by a caller.
type PackageRecord struct {
	Name           string
	Version        string
	Description    string
	Homepage       string
	License        string
	Category       string
	RepositoryName string
	RepositoryType string
	EOL            bool

	extra map[string]any
}

// Extra returns a copy of the format-specific fields that have no dedicated slot.
func (r PackageRecord) Extra() map[string]any {
	if len(r.extra) == 0 {
		return nil
	}
	return maps.Clone(r.extra)
}

// ExtraValue returns a single extra field.
func (r PackageRecord) ExtraValue(key string) (any, bool) {
	v, ok := r.extra[key]
	return v, ok
}

// WithExtra returns a copy of r whose extra map has key set to value.
func (r PackageRecord) WithExtra(key string, value any) PackageRecord {
	next := maps.Clone(r.extra)
	if next == nil {
		next = make(map[string]any, 1)
	}
	next[key] = value
	r.extra = next
	return r
}

// WithExtras returns a copy of r with every entry of extra merged in.
func (r PackageRecord) WithExtras(extra map[string]any) PackageRecord {
	if len(extra) == 0 {
		return r
	}
	next := maps.Clone(r.extra)
	if next == nil {
		next = make(map[string]any, len(extra))
	}
	maps.Copy(next, extra)
	r.extra = next
	return r
}

// WithRepository stamps the owning repository onto the record.
func (r PackageRecord) WithRepository(name, providerType string, eol bool) PackageRecord {
	r.RepositoryName = name
	r.RepositoryType = providerType
	r.EOL = eol
	return r
}

// Key identifies the record within the deduplication space (repository, package).
func (r PackageRecord) Key() string {
	return r.RepositoryName + "/" + r.Name
}

type recordWire struct {
	Name           string         `json:"name" yaml:"name"`
	Version        string         `json:"version,omitempty" yaml:"version,omitempty"`
	Description    string         `json:"description,omitempty" yaml:"description,omitempty"`
	Homepage       string         `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	License        string         `json:"license,omitempty" yaml:"license,omitempty"`
	Category       string         `json:"category,omitempty" yaml:"category,omitempty"`
	RepositoryName string         `json:"repository" yaml:"repository"`
	RepositoryType string         `json:"repository_type,omitempty" yaml:"repository_type,omitempty"`
	EOL            bool           `json:"eol,omitempty" yaml:"eol,omitempty"`
	Extra          map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

func (r PackageRecord) wire() recordWire {
	return recordWire{
		Name:           r.Name,
		Version:        r.Version,
		Description:    r.Description,
		Homepage:       r.Homepage,
		License:        r.License,
		Category:       r.Category,
		RepositoryName: r.RepositoryName,
		RepositoryType: r.RepositoryType,
		EOL:            r.EOL,
		Extra:          r.extra,
	}
}

// MarshalJSON implements json.Marshaler.
func (r PackageRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *PackageRecord) UnmarshalJSON(data []byte) error {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = PackageRecord{
		Name:           w.Name,
		Version:        w.Version,
		Description:    w.Description,
		Homepage:       w.Homepage,
		License:        w.License,
		Category:       w.Category,
		RepositoryName: w.RepositoryName,
		RepositoryType: w.RepositoryType,
		EOL:            w.EOL,
		extra:          w.Extra,
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r PackageRecord) MarshalYAML() (interface{}, error) {
	return r.wire(), nil
}

// CloneRecords returns a shallow copy of records. Elements are values, and their
// extra maps are never mutated in place, so this is enough to isolate callers.
func CloneRecords(records []PackageRecord) []PackageRecord {
	if records == nil {
		return nil
	}
	out := make([]PackageRecord, len(records))
	copy(out, records)
	return out
}
