package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/fieldpath"
	"github.com/glorpus-work/regindex/pkg/model"
)

func parseJSON(raw []byte, spec ParsingSpec) ([]model.PackageRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}

	root := spec.Root
	fields := make(map[string]fieldpath.Path, len(spec.Fields)+len(coreFields))
	for _, f := range coreFields {
		fields[f] = spec.fieldPath(f)
	}
	for k, p := range spec.Fields {
		fields[k] = p
	}

	if root.IsZero() {
		paths := make([]fieldpath.Path, 0, len(spec.Fields))
		for _, p := range spec.Fields {
			paths = append(paths, p)
		}
		if shared, ok := fieldpath.SharedIterPrefix(paths); ok {
			root = shared
			for k, p := range fields {
				fields[k] = p.TrimPrefix(shared)
			}
		}
	}

	items := jsonItems(root, doc)
	records := make([]model.PackageRecord, 0, len(items))
	for i, item := range items {
		if _, isObj := item.(map[string]any); !isObj {
			if s, isStr := item.(string); isStr && len(spec.Fields) == 0 {
				// plain name lists such as ["serde", "tokio"]
				records = append(records, model.PackageRecord{Name: s})
			}
			continue
		}

		var rec model.PackageRecord
		for _, f := range coreFields {
			if v, ok := fields[f].First(item); ok {
				setCore(&rec, f, scalarString(v))
			}
		}
		if rec.Name == "" {
			logger.Debug("Skipping item without package name", logger.Fields{
				"repository": spec.Repository,
				"item":       i,
			})
			continue
		}

		extra := make(map[string]any)
		for _, k := range spec.extraFields() {
			if v, ok := fields[k].First(item); ok {
				extra[k] = plainValue(v)
			}
		}
		records = append(records, rec.WithExtras(extra))
	}
	return records, nil
}

// jsonItems resolves the repeating items below root. An array yields its
// elements and an object yields itself.
func jsonItems(root fieldpath.Path, doc any) []any {
	vals := root.Lookup(doc)
	if root.Iterates() {
		return vals
	}
	if len(vals) == 1 {
		if arr, ok := vals[0].([]any); ok {
			return arr
		}
	}
	return vals
}

// scalarString renders a decoded JSON value for a string record field.
// Lists of strings (license arrays) are joined; objects yield "".
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := scalarString(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		// {"type": "MIT"} style license objects
		if s, ok := t["type"].(string); ok {
			return s
		}
		if s, ok := t["name"].(string); ok {
			return s
		}
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// plainValue converts json.Number leaves into int64 or float64 so extras
// serialize naturally.
func plainValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plainValue(e)
		}
		return out
	default:
		return v
	}
}
