// Package testutil provides httptest-backed registry fixtures for tests.
package testutil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/glorpus-work/regindex/internal/logger"
)

// Registry is a fake package registry. Routes are matched on the request
// path; unknown paths answer 404. Every request is counted per path.
type Registry struct {
	Server *httptest.Server
	URL    string

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	hits   map[string]int
}

// NewRegistry starts a registry that is closed when the test ends.
func NewRegistry(t *testing.T) *Registry {
	t.Helper()
	r := &Registry{
		routes: make(map[string]http.HandlerFunc),
		hits:   make(map[string]int),
	}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	r.URL = r.Server.URL
	t.Cleanup(r.Server.Close)
	return r
}

func (r *Registry) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.hits[req.URL.Path]++
	h, ok := r.routes[req.URL.Path]
	r.mu.Unlock()

	logger.Debugf("test registry: %s %s", req.Method, req.URL.RequestURI())
	if !ok {
		http.NotFound(w, req)
		return
	}
	h(w, req)
}

// Handle serves a fixed status and body on path.
func (r *Registry) Handle(path string, status int, body []byte) {
	r.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	})
}

// HandleJSON serves body with a JSON content type and status 200.
func (r *Registry) HandleJSON(path, body string) {
	r.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

// HandleFunc installs a custom handler on path.
func (r *Registry) HandleFunc(path string, h http.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[path] = h
}

// Hits returns how many requests reached path.
func (r *Registry) Hits(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

// TotalHits returns the number of requests served.
func (r *Registry) TotalHits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.hits {
		n += c
	}
	return n
}

// Gzip compresses data for bulk index fixtures.
func Gzip(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// DebianPackages is a two-package apt index.
const DebianPackages = `Package: nginx
Version: 1.24.0-1
Section: httpd
Homepage: https://nginx.org
Description: small, powerful, scalable web/proxy server
 Nginx ("engine X") is a high-performance web and reverse proxy server.

Package: curl
Version: 8.5.0-2
Section: web
Description: command line tool for transferring data with URL syntax
`

// WriteProvider writes a repository definition into dir and returns its path.
func WriteProvider(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write provider %s: %v", path, err)
	}
	return path
}
