package model

import (
	"strings"

	"github.com/git-pkgs/vers"
	"github.com/hashicorp/go-version"
)

// CompareVersions orders two version strings from possibly different schemes
// (semver, debian epochs, calver). Empty versions sort lowest.
func CompareVersions(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	return vers.Compare(a, b)
}

// Newest returns the record with the highest version; ties keep the first.
func Newest(records []PackageRecord) (PackageRecord, bool) {
	if len(records) == 0 {
		return PackageRecord{}, false
	}
	best := records[0]
	for _, r := range records[1:] {
		if CompareVersions(r.Version, best.Version) > 0 {
			best = r
		}
	}
	return best, true
}

// Constraint filters records by a version constraint such as ">= 1.2, < 2".
type Constraint struct {
	raw string
	c   version.Constraints
}

// ParseConstraint compiles a constraint expression. An empty expression yields
// a nil Constraint that matches everything.
func ParseConstraint(expr string) (*Constraint, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	c, err := version.NewConstraint(expr)
	if err != nil {
		return nil, err
	}
	return &Constraint{raw: expr, c: c}, nil
}

// Matches reports whether v satisfies the constraint. Versions that cannot be
// parsed never match a non-nil constraint.
func (c *Constraint) Matches(v string) bool {
	if c == nil {
		return true
	}
	parsed, err := version.NewVersion(stripDebianRevision(v))
	if err != nil {
		return false
	}
	return c.c.Check(parsed)
}

// String returns the original expression.
func (c *Constraint) String() string {
	if c == nil {
		return ""
	}
	return c.raw
}

// Filter returns the records whose version satisfies c.
func (c *Constraint) Filter(records []PackageRecord) []PackageRecord {
	if c == nil {
		return records
	}
	out := make([]PackageRecord, 0, len(records))
	for _, r := range records {
		if c.Matches(r.Version) {
			out = append(out, r)
		}
	}
	return out
}

// stripDebianRevision turns "1:1.24.0-1ubuntu2" into "1.24.0" so that
// distribution versions can be checked against upstream constraints.
func stripDebianRevision(v string) string {
	if i := strings.IndexByte(v, ':'); i >= 0 && i < 3 {
		v = v[i+1:]
	}
	if i := strings.LastIndexByte(v, '-'); i > 0 && strings.Count(v, ".") >= 1 && !strings.Contains(v[:i], "-") {
		// only a single trailing revision is stripped, pre-release tags keep their dash
		if rev := v[i+1:]; rev != "" && (rev[0] >= '0' && rev[0] <= '9') {
			v = v[:i]
		}
	}
	return v
}
