package adapter

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/model"
)

// debianKeys maps logical fields to the control-file keys that fill them by
// default. Field mappings in the parsing spec override these per field.
var debianKeys = map[string]string{
	FieldName:        "Package",
	FieldVersion:     "Version",
	FieldDescription: "Description",
	FieldHomepage:    "Homepage",
	FieldLicense:     "License",
	FieldCategory:    "Section",
}

type stanza struct {
	line   int
	keys   []string
	values map[string]string
}

// parseDebian reads an apt Packages index: blank-line separated stanzas of
// "Key: value" lines, where lines starting with whitespace continue the
// previous value.
func parseDebian(raw []byte, spec ParsingSpec) ([]model.PackageRecord, error) {
	stanzas, err := splitStanzas(raw, spec.Repository)
	if err != nil {
		return nil, err
	}

	keyFor := make(map[string]string, len(debianKeys))
	for field, key := range debianKeys {
		keyFor[field] = key
	}
	for field, p := range spec.Fields {
		if segs := p.Segments(); len(segs) > 0 {
			keyFor[field] = segs[0].Name
		}
	}
	claimed := make(map[string]bool, len(keyFor))
	for _, key := range keyFor {
		claimed[strings.ToLower(key)] = true
	}

	records := make([]model.PackageRecord, 0, len(stanzas))
	for i, st := range stanzas {
		name := st.get(keyFor[FieldName])
		if name == "" {
			logger.Warn("Skipping stanza without package name", logger.Fields{
				"repository": spec.Repository,
				"stanza":     i + 1,
				"line":       st.line,
			})
			continue
		}

		var rec model.PackageRecord
		for _, field := range coreFields {
			v := st.get(keyFor[field])
			if field == FieldDescription {
				// synopsis only, the long description follows on continuation lines
				v, _, _ = strings.Cut(v, "\n")
			}
			setCore(&rec, field, strings.TrimSpace(v))
		}

		extra := make(map[string]any)
		for field, key := range keyFor {
			if !isCoreField(field) {
				if v := st.get(key); v != "" {
					extra[field] = v
				}
			}
		}
		for _, key := range st.keys {
			if !claimed[strings.ToLower(key)] {
				extra[key] = st.values[strings.ToLower(key)]
			}
		}
		records = append(records, rec.WithExtras(extra))
	}
	return records, nil
}

func (s stanza) get(key string) string {
	if key == "" {
		return ""
	}
	return s.values[strings.ToLower(key)]
}

// splitStanzas drops a stanza holding a line that is neither a field nor a
// continuation and keeps the rest of the document. The document fails only
// when every stanza was dropped.
func splitStanzas(raw []byte, repository string) ([]stanza, error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		stanzas []stanza
		cur     *stanza
		lastKey string
		lineNo  int
		broken  int
		lastErr error
		skip    bool
	)
	flush := func() {
		if cur != nil && len(cur.keys) > 0 && !skip {
			stanzas = append(stanzas, *cur)
		}
		cur = nil
		lastKey = ""
		skip = false
	}
	drop := func(err error) {
		broken++
		lastErr = err
		skip = true
		logger.Warn("Skipping malformed stanza", logger.Fields{
			"repository": repository,
			"line":       cur.line,
			"error":      err.Error(),
		})
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if cur == nil {
			cur = &stanza{line: lineNo, values: make(map[string]string)}
		}
		if skip {
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if lastKey == "" {
				drop(fmt.Errorf("line %d: continuation without a field", lineNo))
				continue
			}
			cont := strings.TrimSpace(line)
			if cont == "." {
				// a lone dot encodes an empty line inside a folded value
				cont = ""
			}
			cur.values[lastKey] += "\n" + cont
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) == "" {
			drop(fmt.Errorf("line %d: expected \"Key: value\"", lineNo))
			continue
		}
		key = strings.TrimSpace(key)
		lower := strings.ToLower(key)
		if _, dup := cur.values[lower]; !dup {
			cur.keys = append(cur.keys, key)
		}
		cur.values[lower] = strings.TrimSpace(value)
		lastKey = lower
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	flush()
	if len(stanzas) == 0 && broken > 0 {
		return nil, fmt.Errorf("%w: %d malformed stanzas, last %w", ErrMalformedDocument, broken, lastErr)
	}
	return stanzas, nil
}
