package adapter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/glorpus-work/regindex/pkg/model"
)

// parseHTML extracts package names from anchors of a directory listing or
// "simple" index page (PyPI simple, Apache autoindex).
func parseHTML(raw []byte, spec ParsingSpec) ([]model.PackageRecord, error) {
	z := html.NewTokenizer(bytes.NewReader(raw))
	seen := make(map[string]bool)
	var records []model.PackageRecord

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
			}
			return records, nil
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "a" || !hasAttr {
			continue
		}

		var href string
		for {
			key, val, more := z.TagAttr()
			if string(key) == "href" {
				href = string(val)
			}
			if !more {
				break
			}
		}

		rec, ok := recordFromHref(href, spec)
		if !ok || seen[rec.Name+"\x00"+rec.Version] {
			continue
		}
		seen[rec.Name+"\x00"+rec.Version] = true
		records = append(records, rec)
	}
}

func recordFromHref(href string, spec ParsingSpec) (model.PackageRecord, bool) {
	href = strings.TrimSpace(href)
	if skipHref(href) {
		return model.PackageRecord{}, false
	}

	if spec.LinkPattern != nil {
		m := spec.LinkPattern.FindStringSubmatch(href)
		if m == nil {
			return model.PackageRecord{}, false
		}
		var rec model.PackageRecord
		for i, group := range spec.LinkPattern.SubexpNames() {
			if i == 0 || i >= len(m) {
				continue
			}
			switch group {
			case FieldVersion:
				rec.Version = m[i]
			case FieldName:
				rec.Name = m[i]
			case "":
				if rec.Name == "" {
					rec.Name = m[i]
				}
			}
		}
		if rec.Name == "" {
			rec.Name = m[0]
		}
		rec.Name = unescapeLink(rec.Name)
		return rec, rec.Name != ""
	}

	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	name := strings.TrimSuffix(strings.TrimPrefix(href, "./"), "/")
	if j := strings.LastIndexByte(name, '/'); j >= 0 {
		name = name[j+1:]
	}
	name = unescapeLink(name)
	return model.PackageRecord{Name: name}, name != ""
}

// skipHref drops navigation links: parents, sort/query links, fragments and
// absolute links to other hosts.
func skipHref(href string) bool {
	switch {
	case href == "", href == "/", href == "./", href == ".":
		return true
	case strings.HasPrefix(href, "../"), href == "..":
		return true
	case strings.HasPrefix(href, "?"), strings.HasPrefix(href, "#"):
		return true
	case strings.HasPrefix(href, "mailto:"), strings.HasPrefix(href, "javascript:"):
		return true
	case strings.Contains(href, "://"), strings.HasPrefix(href, "//"):
		return true
	}
	return false
}

func unescapeLink(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}
