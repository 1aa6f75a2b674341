// Package fieldpath compiles the small path language used in repository
// definitions to point at fields inside fetched documents:
//
//	crates[].name       iterate the "crates" array, take "name" of each item
//	versions[0].num     first element of "versions"
//	channel/item/title  slash and dot separators are interchangeable
//	@name               attribute "name" (XML)
//
// Paths are compiled once when a repository definition is loaded and evaluated
// against every record, so evaluation never re-parses the expression.
package fieldpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a compiled path.
type Segment struct {
	// Name is the object key or element name. Empty for a bare "[]" step.
	Name string
	// Index selects one array element; -1 when absent.
	Index int
	// Iterate fans out over every array element.
	Iterate bool
	// Attr marks an XML attribute reference ("@name").
	Attr bool
}

func (s Segment) String() string {
	var b strings.Builder
	if s.Attr {
		b.WriteByte('@')
	}
	b.WriteString(s.Name)
	switch {
	case s.Iterate:
		b.WriteString("[]")
	case s.Index >= 0:
		b.WriteString("[" + strconv.Itoa(s.Index) + "]")
	}
	return b.String()
}

// Path is a compiled field path. The zero value selects the whole document.
type Path struct {
	raw  string
	segs []Segment
}

// Compile parses expr. An empty expression, "." or "$" compile to the empty path.
func Compile(expr string) (Path, error) {
	raw := strings.TrimSpace(expr)
	trimmed := strings.TrimPrefix(strings.TrimPrefix(raw, "$"), ".")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return Path{raw: raw}, nil
	}

	parts := strings.FieldsFunc(trimmed, func(r rune) bool { return r == '.' || r == '/' })
	segs := make([]Segment, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return Path{}, fmt.Errorf("invalid field path %q: %w", expr, err)
		}
		segs = append(segs, seg)
	}
	for i, s := range segs {
		if s.Attr && i != len(segs)-1 {
			return Path{}, fmt.Errorf("invalid field path %q: attribute %q must be the last segment", expr, s.Name)
		}
	}
	return Path{raw: raw, segs: segs}, nil
}

// MustCompile is like Compile but panics on error. For tests and static tables.
func MustCompile(expr string) Path {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func parseSegment(part string) (Segment, error) {
	seg := Segment{Index: -1}
	if strings.HasPrefix(part, "@") {
		seg.Attr = true
		part = part[1:]
		if part == "" || strings.ContainsAny(part, "[]") {
			return Segment{}, fmt.Errorf("bad attribute %q", "@"+part)
		}
	}

	open := strings.IndexByte(part, '[')
	if open < 0 {
		if strings.ContainsRune(part, ']') {
			return Segment{}, fmt.Errorf("unbalanced bracket in %q", part)
		}
		seg.Name = part
		return seg, nil
	}
	if !strings.HasSuffix(part, "]") || strings.Count(part, "[") != 1 {
		return Segment{}, fmt.Errorf("unbalanced bracket in %q", part)
	}

	seg.Name = part[:open]
	inner := part[open+1 : len(part)-1]
	if inner == "" || inner == "*" {
		seg.Iterate = true
		return seg, nil
	}
	idx, err := strconv.Atoi(inner)
	if err != nil || idx < 0 {
		return Segment{}, fmt.Errorf("bad index %q", inner)
	}
	seg.Index = idx
	return seg, nil
}

// String returns the source expression.
func (p Path) String() string {
	if p.raw != "" {
		return p.raw
	}
	parts := make([]string, len(p.segs))
	for i, s := range p.segs {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// IsZero reports whether the path selects the whole document.
func (p Path) IsZero() bool {
	return len(p.segs) == 0
}

// Segments returns a copy of the compiled segments.
func (p Path) Segments() []Segment {
	out := make([]Segment, len(p.segs))
	copy(out, p.segs)
	return out
}

// Len is the number of segments.
func (p Path) Len() int {
	return len(p.segs)
}

// IsAttr reports whether the path ends in an attribute reference.
func (p Path) IsAttr() bool {
	return len(p.segs) > 0 && p.segs[len(p.segs)-1].Attr
}

// Iterates reports whether any segment fans out.
func (p Path) Iterates() bool {
	for _, s := range p.segs {
		if s.Iterate {
			return true
		}
	}
	return false
}

// IterPrefix splits p at its first iterating segment: for "crates[].name" it
// returns ("crates[]", "name", true).
func (p Path) IterPrefix() (prefix, rest Path, ok bool) {
	for i, s := range p.segs {
		if s.Iterate {
			return Path{segs: p.segs[:i+1]}, Path{segs: p.segs[i+1:]}, true
		}
	}
	return Path{}, p, false
}

// HasPrefix reports whether p starts with every segment of prefix.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.segs) > len(p.segs) {
		return false
	}
	for i, s := range prefix.segs {
		if p.segs[i] != s {
			return false
		}
	}
	return true
}

// TrimPrefix removes prefix from p when p starts with it.
func (p Path) TrimPrefix(prefix Path) Path {
	if !p.HasPrefix(prefix) {
		return p
	}
	return Path{segs: p.segs[len(prefix.segs):]}
}

// SharedIterPrefix returns the iterating prefix that every non-empty path in
// paths starts with, if there is exactly one. It is how a root is inferred from
// field mappings such as {name: crates[].name, version: crates[].max_version}.
func SharedIterPrefix(paths []Path) (Path, bool) {
	var shared Path
	found := false
	for _, p := range paths {
		if p.IsZero() {
			continue
		}
		prefix, _, ok := p.IterPrefix()
		if !ok {
			return Path{}, false
		}
		if !found {
			shared, found = prefix, true
			continue
		}
		if !prefix.HasPrefix(shared) || !shared.HasPrefix(prefix) {
			return Path{}, false
		}
	}
	return shared, found
}

// Lookup evaluates p against a decoded JSON-like value (map[string]any, []any,
// scalars) and returns every value it reaches. Missing keys and type
// mismatches yield no values rather than an error.
func (p Path) Lookup(doc any) []any {
	current := []any{doc}
	for _, seg := range p.segs {
		next := make([]any, 0, len(current))
		for _, v := range current {
			next = append(next, step(v, seg)...)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

// First returns the first value Lookup finds.
func (p Path) First(doc any) (any, bool) {
	vals := p.Lookup(doc)
	if len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

func step(v any, seg Segment) []any {
	if seg.Name != "" {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		key := seg.Name
		if seg.Attr {
			// attribute syntax on JSON documents falls back to "@name" then "name"
			if val, ok := obj["@"+key]; ok {
				return []any{val}
			}
		}
		val, ok := obj[key]
		if !ok {
			return nil
		}
		v = val
	}

	switch {
	case seg.Iterate:
		arr, ok := v.([]any)
		if !ok {
			return nil
		}
		return arr
	case seg.Index >= 0:
		arr, ok := v.([]any)
		if !ok || seg.Index >= len(arr) {
			return nil
		}
		return []any{arr[seg.Index]}
	default:
		return []any{v}
	}
}
