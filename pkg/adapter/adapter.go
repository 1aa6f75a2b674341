// Package adapter turns raw registry payloads into model.PackageRecord values.
//
// Each supported document format has a Parser registered under its Format
// name; Parse runs the configured decompression and then dispatches to the
// parser. Parsers are pure: they do no I/O and keep no state between calls.
package adapter

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/glorpus-work/regindex/pkg/fieldpath"
	"github.com/glorpus-work/regindex/pkg/model"
)

// Format names a document format.
type Format string

// Supported formats.
const (
	FormatJSON           Format = "json"
	FormatXML            Format = "xml"
	FormatDebianPackages Format = "debian_packages"
	FormatHTML           Format = "html"
	FormatGeneric        Format = "generic"
)

// Logical record fields. Any other key in a field mapping lands in the
// record's extra map.
const (
	FieldName        = "name"
	FieldVersion     = "version"
	FieldDescription = "description"
	FieldHomepage    = "homepage"
	FieldLicense     = "license"
	FieldCategory    = "category"
)

// ParsingSpec is the compiled parsing section of a repository definition.
type ParsingSpec struct {
	Repository  string
	Format      Format
	Compression Compression
	// Root selects the repeating item. Zero means the whole document.
	Root fieldpath.Path
	// Fields maps logical field names to paths relative to one item.
	Fields map[string]fieldpath.Path
	// Script is the Tengo source for the generic format.
	Script string
	// LinkPattern filters anchors for the html format. The first capture group
	// (or the group named "name") is the package name; a group named
	// "version" fills the version.
	LinkPattern *regexp.Regexp
}

// Parser converts one decompressed document into records.
type Parser interface {
	Parse(raw []byte, spec ParsingSpec) ([]model.PackageRecord, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(raw []byte, spec ParsingSpec) ([]model.PackageRecord, error)

// Parse implements Parser.
func (f ParserFunc) Parse(raw []byte, spec ParsingSpec) ([]model.PackageRecord, error) {
	return f(raw, spec)
}

var registry = map[Format]Parser{
	FormatJSON:           ParserFunc(parseJSON),
	FormatXML:            ParserFunc(parseXML),
	FormatDebianPackages: ParserFunc(parseDebian),
	FormatHTML:           ParserFunc(parseHTML),
	FormatGeneric:        ParserFunc(parseGeneric),
}

// Formats lists the registered formats in stable order.
func Formats() []Format {
	out := make([]Format, 0, len(registry))
	for f := range registry {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// IsKnownFormat reports whether f has a registered parser.
func IsKnownFormat(f Format) bool {
	_, ok := registry[Format(strings.ToLower(string(f)))]
	return ok
}

// Parse decompresses raw per spec.Compression and parses it with the parser
// registered for spec.Format. Every failure is a *ParseError.
func Parse(raw []byte, spec ParsingSpec) ([]model.PackageRecord, error) {
	parser, ok := registry[spec.Format]
	if !ok {
		return nil, newParseError(spec, nil, fmt.Errorf("%w: %q", ErrUnknownFormat, spec.Format))
	}

	body, err := Decompress(raw, spec.Compression)
	if err != nil {
		return nil, newParseError(spec, raw, err)
	}

	records, err := parser.Parse(body, spec)
	if err != nil {
		if _, isParseErr := err.(*ParseError); isParseErr {
			return nil, err
		}
		return nil, newParseError(spec, body, err)
	}
	return records, nil
}

// fieldPath returns the configured path for a logical field, falling back to a
// path equal to the field name.
func (s ParsingSpec) fieldPath(field string) fieldpath.Path {
	if p, ok := s.Fields[field]; ok {
		return p
	}
	return fieldpath.MustCompile(field)
}

// extraFields returns the mapped fields that are not core record fields, in
// stable order.
func (s ParsingSpec) extraFields() []string {
	var out []string
	for k := range s.Fields {
		if !isCoreField(k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func isCoreField(name string) bool {
	switch name {
	case FieldName, FieldVersion, FieldDescription, FieldHomepage, FieldLicense, FieldCategory:
		return true
	}
	return false
}

// setCore assigns a core field on r; it reports false for unknown fields.
func setCore(r *model.PackageRecord, field, value string) bool {
	switch field {
	case FieldName:
		r.Name = value
	case FieldVersion:
		r.Version = value
	case FieldDescription:
		r.Description = value
	case FieldHomepage:
		r.Homepage = value
	case FieldLicense:
		r.License = value
	case FieldCategory:
		r.Category = value
	default:
		return false
	}
	return true
}

var coreFields = []string{FieldName, FieldVersion, FieldDescription, FieldHomepage, FieldLicense, FieldCategory}
