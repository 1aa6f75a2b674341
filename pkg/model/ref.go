package model

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/git-pkgs/purl"
)

// purlTypes maps repository provider types onto package-url types.
var purlTypes = map[string]string{
	"apt":        "deb",
	"deb":        "deb",
	"dnf":        "rpm",
	"yum":        "rpm",
	"rpm":        "rpm",
	"apk":        "apk",
	"pacman":     "alpm",
	"brew":       "brew",
	"homebrew":   "brew",
	"npm":        "npm",
	"pypi":       "pypi",
	"pip":        "pypi",
	"crates":     "cargo",
	"cargo":      "cargo",
	"rubygems":   "gem",
	"gem":        "gem",
	"go":         "golang",
	"golang":     "golang",
	"maven":      "maven",
	"nuget":      "nuget",
	"winget":     "winget",
	"chocolatey": "chocolatey",
	"scoop":      "scoop",
	"conda":      "conda",
	"hex":        "hex",
	"pub":        "pub",
	"cocoapods":  "cocoapods",
	"packagist":  "composer",
	"composer":   "composer",
}

// PURLType returns the package-url type for a provider type, falling back to
// the lowercased provider type itself.
func PURLType(providerType string) string {
	t := strings.ToLower(providerType)
	if mapped, ok := purlTypes[t]; ok {
		return mapped
	}
	return t
}

// PURL renders the record as a package URL, e.g. pkg:npm/left-pad@1.3.0.
// Scoped names ("@types/node", "github.com/x/y") keep their namespace.
func (r PackageRecord) PURL() string {
	if r.Name == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("pkg:")
	b.WriteString(PURLType(r.RepositoryType))
	b.WriteByte('/')

	parts := strings.Split(r.Name, "/")
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(strings.ReplaceAll(url.PathEscape(p), "@", "%40"))
	}
	if r.Version != "" {
		b.WriteByte('@')
		b.WriteString(url.PathEscape(r.Version))
	}
	return b.String()
}

// Ref is a parsed package reference as accepted by lookups: either
// "<repository>/<name>" or a package URL.
type Ref struct {
	// Repository is set for repository-qualified references.
	Repository string
	// Type is the purl type for package-URL references (npm, deb, ...).
	Type    string
	Name    string
	Version string
	// RepositoryURL carries the repository_url qualifier when present.
	RepositoryURL string
}

// IsPURL reports whether the reference came from a package URL.
func (r Ref) IsPURL() bool {
	return r.Type != ""
}

// ParseRef parses "repo/name", "repo/name@version" or "pkg:type/ns/name@version".
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty package reference")
	}

	if strings.HasPrefix(s, "pkg:") {
		p, err := purl.Parse(s)
		if err != nil {
			return Ref{}, fmt.Errorf("invalid package url %q: %w", s, err)
		}
		return Ref{
			Type:          p.Type,
			Name:          p.FullName(),
			Version:       p.Version,
			RepositoryURL: p.Qualifier("repository_url"),
		}, nil
	}

	repo, rest, ok := strings.Cut(s, "/")
	if !ok || repo == "" || rest == "" {
		return Ref{}, fmt.Errorf("invalid package reference %q: expected <repository>/<name> or pkg:<type>/<name>", s)
	}
	ref := Ref{Repository: repo, Name: rest}
	// a leading '@' is an npm scope, not a version separator
	if i := strings.LastIndexByte(rest, '@'); i > 0 {
		ref.Name = rest[:i]
		ref.Version = rest[i+1:]
	}
	return ref, nil
}
