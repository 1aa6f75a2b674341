package adapter

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/fieldpath"
	"github.com/glorpus-work/regindex/pkg/model"
)

type xmlNode struct {
	name     string
	attrs    map[string]string
	children []*xmlNode
	text     strings.Builder
}

func parseXML(raw []byte, spec ParsingSpec) ([]model.PackageRecord, error) {
	doc, err := buildXMLTree(raw)
	if err != nil {
		return nil, err
	}

	items := doc.children
	if !spec.Root.IsZero() {
		// the root path may or may not name the document element
		items = selectNodes(&xmlNode{children: []*xmlNode{doc}}, spec.Root)
		if len(items) == 0 {
			items = selectNodes(doc, spec.Root)
		}
	}

	records := make([]model.PackageRecord, 0, len(items))
	for i, item := range items {
		var rec model.PackageRecord
		for _, f := range coreFields {
			if v, ok := xmlValue(item, spec.fieldPath(f)); ok {
				setCore(&rec, f, v)
			}
		}
		if rec.Name == "" {
			logger.Debug("Skipping element without package name", logger.Fields{
				"repository": spec.Repository,
				"element":    item.name,
				"item":       i,
			})
			continue
		}
		extra := make(map[string]any)
		for _, k := range spec.extraFields() {
			if v, ok := xmlValue(item, spec.Fields[k]); ok {
				extra[k] = v
			}
		}
		records = append(records, rec.WithExtras(extra))
	}
	return records, nil
}

func buildXMLTree(raw []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		// registries publish utf-8 in practice even when declaring latin-1
		return input, nil
	}

	var (
		stack []*xmlNode
		root  *xmlNode
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				n.attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple document elements", ErrMalformedDocument)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no document element", ErrMalformedDocument)
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unclosed element <%s>", ErrMalformedDocument, stack[len(stack)-1].name)
	}
	return root, nil
}

// selectNodes walks element segments of p (attribute segments are ignored).
func selectNodes(from *xmlNode, p fieldpath.Path) []*xmlNode {
	current := []*xmlNode{from}
	for _, seg := range p.Segments() {
		if seg.Attr {
			break
		}
		var next []*xmlNode
		for _, n := range current {
			var matched []*xmlNode
			for _, c := range n.children {
				if seg.Name == "" || c.name == seg.Name {
					matched = append(matched, c)
				}
			}
			if seg.Index >= 0 {
				if seg.Index < len(matched) {
					next = append(next, matched[seg.Index])
				}
				continue
			}
			next = append(next, matched...)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

// xmlValue resolves p relative to item: element text, or an attribute when the
// path ends in @name. An empty path yields the item's own text.
func xmlValue(item *xmlNode, p fieldpath.Path) (string, bool) {
	nodes := selectNodes(item, p)
	if len(nodes) == 0 {
		return "", false
	}
	n := nodes[0]
	if p.IsAttr() {
		segs := p.Segments()
		v, ok := n.attrs[segs[len(segs)-1].Name]
		return v, ok
	}
	return strings.TrimSpace(n.text.String()), true
}
