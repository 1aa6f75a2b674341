package cache

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/zeebo/blake3"

	"github.com/glorpus-work/regindex/pkg/model"
)

// Kind distinguishes the entry shapes kept by the store.
type Kind string

// Entry kinds.
const (
	KindBulk    Kind = "bulk"
	KindPackage Kind = "package"
	KindSearch  Kind = "search"
)

// BulkKey is the cache key of a bulk repository's full listing.
func BulkKey(repository string) string {
	return repository
}

// PackageKey is the cache key of one package fetched from an API repository.
func PackageKey(repository, pkg string) string {
	return repository + ":" + pkg
}

// SearchKey is the cache key of a free-text search against an API repository.
func SearchKey(repository, query string) string {
	return repository + "?q=" + query
}

// Entry is one cached fetch result.
type Entry struct {
	Key        string
	Kind       Kind
	Repository string
	// Package holds the package name for KindPackage and the query for KindSearch.
	Package   string
	Records   []model.PackageRecord
	FetchedAt time.Time
	TTL       time.Duration
	// Size is the length of the serialized record list.
	Size int64
	// Digest is the hex BLAKE3-256 of the serialized record list.
	Digest string
}

// Expired reports whether now is past FetchedAt+TTL.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.FetchedAt) > e.TTL
}

// Evictable reports whether the entry is past grace×TTL.
func (e *Entry) Evictable(now time.Time, grace float64) bool {
	return now.Sub(e.FetchedAt) > time.Duration(float64(e.TTL)*grace)
}

// Age is how long ago the entry was fetched.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

func (e *Entry) clone() Entry {
	c := *e
	c.Records = model.CloneRecords(e.Records)
	return c
}

// meta is the sidecar / row metadata persisted alongside a payload.
type meta struct {
	Key        string    `json:"key"`
	Kind       Kind      `json:"kind"`
	Repository string    `json:"repository"`
	Package    string    `json:"package,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
	TTLSeconds float64   `json:"ttl_seconds"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
}

func (e *Entry) meta() meta {
	return meta{
		Key:        e.Key,
		Kind:       e.Kind,
		Repository: e.Repository,
		Package:    e.Package,
		FetchedAt:  e.FetchedAt,
		TTLSeconds: e.TTL.Seconds(),
		Size:       e.Size,
		Digest:     e.Digest,
	}
}

func (m meta) entry() *Entry {
	return &Entry{
		Key:        m.Key,
		Kind:       m.Kind,
		Repository: m.Repository,
		Package:    m.Package,
		FetchedAt:  m.FetchedAt,
		TTL:        time.Duration(m.TTLSeconds * float64(time.Second)),
		Size:       m.Size,
		Digest:     m.Digest,
	}
}

// encodeRecords serializes records and returns the payload with its digest.
func encodeRecords(records []model.PackageRecord) ([]byte, string, error) {
	if records == nil {
		records = []model.PackageRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, "", err
	}
	return payload, digest(payload), nil
}

func digest(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Stored is a persisted entry as handed back by a Persister: metadata plus the
// raw payload, which the store verifies against the digest before decoding.
type Stored struct {
	Entry   *Entry
	Payload []byte
}
