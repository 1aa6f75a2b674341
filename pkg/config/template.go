package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Endpoint placeholders.
const (
	PlaceholderQuery   = "query"
	PlaceholderPackage = "package"
	PlaceholderVersion = "version"
	PlaceholderArch    = "arch"
)

var placeholders = []string{PlaceholderQuery, PlaceholderPackage, PlaceholderVersion, PlaceholderArch}

// Template is a compiled endpoint URL template such as
// "https://registry.npmjs.org/{package}" or "https://api/search?q={query}".
type Template struct {
	raw   string
	names []string
}

// Endpoints holds the compiled templates of a repository. Unset endpoints are zero.
type Endpoints struct {
	Packages Template
	Search   Template
	Info     Template
	Versions Template
}

// ParseTemplate validates placeholders and checks that the expanded URL is
// an absolute http(s) URL.
func ParseTemplate(raw string) (Template, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Template{}, nil
	}

	var names []string
	rest := raw
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return Template{}, fmt.Errorf("%w: unclosed placeholder in %q", ErrInvalidEndpoint, raw)
		}
		name := rest[start+1 : start+end]
		if !slices.Contains(placeholders, name) {
			return Template{}, fmt.Errorf("%w: unknown placeholder {%s} in %q", ErrInvalidEndpoint, name, raw)
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
		rest = rest[start+end+1:]
	}

	t := Template{raw: raw, names: names}
	sample := make(map[string]string, len(names))
	for _, n := range names {
		sample[n] = "x"
	}
	u, err := url.Parse(t.Expand(sample))
	if err != nil {
		return Template{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Template{}, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidEndpoint, raw)
	}
	return t, nil
}

// IsZero reports an unset endpoint.
func (t Template) IsZero() bool {
	return t.raw == ""
}

// String returns the template text.
func (t Template) String() string {
	return t.raw
}

// Has reports whether the template references the placeholder.
func (t Template) Has(name string) bool {
	return slices.Contains(t.names, name)
}

// Expand substitutes values. Placeholders in the query string are
// query-escaped, the rest path-escaped; missing values expand to "".
func (t Template) Expand(values map[string]string) string {
	if len(t.names) == 0 {
		return t.raw
	}
	queryStart := strings.IndexByte(t.raw, '?')

	var b strings.Builder
	i := 0
	for i < len(t.raw) {
		c := t.raw[i]
		if c == '{' {
			if end := strings.IndexByte(t.raw[i:], '}'); end > 0 {
				name := t.raw[i+1 : i+end]
				v := values[name]
				if queryStart >= 0 && i > queryStart {
					b.WriteString(url.QueryEscape(v))
				} else {
					b.WriteString(url.PathEscape(v))
				}
				i += end + 1
				continue
			}
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}
