package adapter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/glorpus-work/regindex/pkg/model"
)

// scriptTimeout bounds a single generic-format script run.
const scriptTimeout = 10 * time.Second

// parseGeneric handles registries whose format has no dedicated parser. With a
// script, the Tengo program receives the payload as `body` and the repository
// name as `repository` and must assign an array of maps to `records`. It may
// set `err` to abort. Without a script every non-empty line is "name [version]".
func parseGeneric(raw []byte, spec ParsingSpec) ([]model.PackageRecord, error) {
	if strings.TrimSpace(spec.Script) == "" {
		return parseLines(raw), nil
	}
	return runScript(raw, spec)
}

func parseLines(raw []byte) []model.PackageRecord {
	var records []model.PackageRecord
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		rec := model.PackageRecord{Name: fields[0]}
		if len(fields) > 1 {
			rec.Version = fields[1]
		}
		records = append(records, rec)
	}
	return records
}

func runScript(raw []byte, spec ParsingSpec) ([]model.PackageRecord, error) {
	script := tengo.NewScript([]byte(spec.Script))
	script.SetImports(stdlib.GetModuleMap("fmt", "text", "json", "enum"))

	if err := script.Add("body", string(raw)); err != nil {
		return nil, fmt.Errorf("failed to add body to script: %w", err)
	}
	if err := script.Add("repository", spec.Repository); err != nil {
		return nil, fmt.Errorf("failed to add repository to script: %w", err)
	}
	if err := script.Add("records", []interface{}{}); err != nil {
		return nil, fmt.Errorf("failed to add records to script: %w", err)
	}
	if err := script.Add("err", ""); err != nil {
		return nil, fmt.Errorf("failed to add err to script: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), scriptTimeout)
	defer cancel()
	compiled, err := script.RunContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScript, err)
	}

	if errVar := compiled.Get("err"); errVar != nil {
		if msg := errVar.String(); msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrScript, msg)
		}
	}

	items, ok := compiled.Get("records").Value().([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: records must be an array", ErrScript)
	}
	records := make([]model.PackageRecord, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: records[%d] is not a map", ErrScript, i)
		}
		var rec model.PackageRecord
		extra := make(map[string]any)
		for k, v := range m {
			if !setCore(&rec, k, scalarString(v)) {
				extra[k] = v
			}
		}
		if rec.Name == "" {
			continue
		}
		records = append(records, rec.WithExtras(extra))
	}
	return records, nil
}
