package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lokeshec23/GC-AI/internal/schema"
)

var (
	ErrNoJSON         = errors.New("no JSON value found in response")
	ErrSchemaMismatch = errors.New("response does not match row schema")
)

var (
	sectionKeys    = keySet("majorsection", "section", "category", "heading", "title", "topic")
	subsectionKeys = keySet("subsection", "subheading", "subtopic", "subcategory", "subtitle")
	summaryKeys    = keySet("summary", "content", "details", "description", "value", "text", "rule", "guideline", "requirement")
	wrapperKeys    = keySet("rows", "data", "items", "results", "guidelines", "extractions", "entries", "records")
)

func keySet(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func canon(key string) string {
	r := strings.NewReplacer(" ", "", "_", "", "-", "")
	return r.Replace(strings.ToLower(strings.TrimSpace(key)))
}

// Normalize parses raw model output into rows. Any failure comes back as an
// InvalidResponse error for providerName.
func Normalize(providerName, raw string) ([]schema.Row, error) {
	rows, err := ParseRows(raw)
	if errors.Is(err, ErrSchemaMismatch) {
		return nil, NewError(providerName, KindInvalidResponse, "schema mismatch", err)
	}
	if err != nil {
		return nil, NewError(providerName, KindInvalidResponse, "unparseable output", err)
	}
	return rows, nil
}

// ParseRows pulls the first JSON array or object out of raw model output,
// checks its shape and flattens it into rows, keeping the order the model
// emitted.
func ParseRows(raw string) ([]schema.Row, error) {
	raw = stripFences(raw)

	// Only the earliest value is considered: a truncated array must not
	// fall back to one of its own complete elements.
	i := strings.IndexAny(raw, "[{")
	if i < 0 {
		return nil, ErrNoJSON
	}
	dec := json.NewDecoder(strings.NewReader(raw[i:]))
	dec.UseNumber()
	n, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	n = unwrap(n)
	if err := schema.ValidateFragment(n.value()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if err := checkShape(n); err != nil {
		return nil, err
	}
	return flatten(n, ""), nil
}

// stripFences drops a markdown fence line opening the payload and a fence
// closing it. Backticks elsewhere are content.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if i := fenceLine(s); i >= 0 {
		end := strings.IndexByte(s[i:], '\n')
		if end < 0 {
			rest := strings.TrimPrefix(s[i+3:], "json")
			s = s[:i] + strings.TrimPrefix(rest, "JSON")
		} else {
			s = s[:i] + s[i+end+1:]
		}
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "```") {
		rest := strings.TrimRight(s[:len(s)-3], " \t")
		if rest == "" || strings.HasSuffix(rest, "\n") {
			s = rest
		}
	}
	return strings.TrimSpace(s)
}

// fenceLine returns the offset of the first line that starts with a fence.
func fenceLine(s string) int {
	for off := 0; off < len(s); {
		if strings.HasPrefix(s[off:], "```") {
			return off
		}
		nl := strings.IndexByte(s[off:], '\n')
		if nl < 0 {
			return -1
		}
		off += nl + 1
	}
	return -1
}

func unwrap(n *node) *node {
	for n.kind == kindObject && len(n.keys) == 1 && wrapperKeys[canon(n.keys[0])] && n.vals[0].kind == kindArray {
		n = n.vals[0]
	}
	return n
}

// checkShape rejects well-formed JSON that does not carry extraction rows:
// list items must be row objects or section maps, and a section map must
// name a section, subsection or summary field somewhere.
func checkShape(n *node) error {
	switch n.kind {
	case kindArray:
		for i, item := range n.items {
			if err := checkObject(item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	case kindObject:
		return checkObject(n)
	}
	return fmt.Errorf("%w: expected a list or an object", ErrSchemaMismatch)
}

func checkObject(n *node) error {
	if n.kind != kindObject {
		return fmt.Errorf("%w: expected an object", ErrSchemaMismatch)
	}
	if looksLikeRow(n) {
		return nil
	}
	if !hasRowKey(n) {
		return fmt.Errorf("%w: no section, subsection or summary field", ErrSchemaMismatch)
	}
	// Section map: section -> summary, row, list or subsection map.
	for i, k := range n.keys {
		v := n.vals[i]
		switch v.kind {
		case kindArray:
			for _, it := range v.items {
				if it.kind == kindObject && !looksLikeRow(it) {
					return fmt.Errorf("%w: section %q holds an object without row fields", ErrSchemaMismatch, k)
				}
			}
		case kindObject:
			if looksLikeRow(v) {
				continue
			}
			for j, sub := range v.keys {
				if leaf := v.vals[j]; leaf.kind == kindObject && !looksLikeRow(leaf) {
					return fmt.Errorf("%w: subsection %q in %q holds an object without row fields", ErrSchemaMismatch, sub, k)
				}
			}
		}
	}
	return nil
}

// hasRowKey reports whether any object in n uses a row field name.
func hasRowKey(n *node) bool {
	switch n.kind {
	case kindObject:
		if looksLikeRow(n) {
			return true
		}
		for _, v := range n.vals {
			if hasRowKey(v) {
				return true
			}
		}
	case kindArray:
		for _, it := range n.items {
			if hasRowKey(it) {
				return true
			}
		}
	}
	return false
}

type nodeKind int

const (
	kindScalar nodeKind = iota
	kindObject
	kindArray
)

// node is a JSON value that remembers object key order.
type node struct {
	kind    nodeKind
	scalar  string
	literal any
	keys    []string
	vals    []*node
	items   []*node
}

func decodeValue(dec *json.Decoder) (*node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := &node{kind: kindObject}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", kt)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				n.keys = append(n.keys, key)
				n.vals = append(n.vals, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &node{kind: kindArray}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				n.items = append(n.items, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return &node{scalar: t, literal: t}, nil
	case json.Number:
		return &node{scalar: t.String(), literal: t}, nil
	case bool:
		return &node{scalar: strconv.FormatBool(t), literal: t}, nil
	case nil:
		return &node{}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// value converts n back to plain JSON values for schema validation.
func (n *node) value() any {
	switch n.kind {
	case kindObject:
		m := make(map[string]any, len(n.keys))
		for i, k := range n.keys {
			m[k] = n.vals[i].value()
		}
		return m
	case kindArray:
		out := make([]any, len(n.items))
		for i, it := range n.items {
			out[i] = it.value()
		}
		return out
	}
	return n.literal
}

func flatten(n *node, section string) []schema.Row {
	var rows []schema.Row
	switch n.kind {
	case kindArray:
		for _, item := range n.items {
			rows = append(rows, flatten(item, section)...)
		}
	case kindObject:
		switch {
		case looksLikeRow(n):
			rows = append(rows, rowFrom(n, section))
		case len(n.keys) == 1 && wrapperKeys[canon(n.keys[0])] && n.vals[0].kind == kindArray:
			rows = append(rows, flatten(n.vals[0], section)...)
		case section != "":
			// Second level of a section map: keys are subsections.
			for i, k := range n.keys {
				v := n.vals[i]
				if v.kind == kindObject && looksLikeRow(v) {
					r := rowFrom(v, section)
					if r.Subsection == "" {
						r.Subsection = k
					}
					rows = append(rows, r)
					continue
				}
				rows = append(rows, schema.Row{MajorSection: section, Subsection: k, Summary: stringify(v)})
			}
		default:
			for i, k := range n.keys {
				v := n.vals[i]
				if v.kind == kindScalar {
					rows = append(rows, schema.Row{MajorSection: k, Summary: v.scalar})
					continue
				}
				rows = append(rows, flatten(v, k)...)
			}
		}
	default:
		if s := strings.TrimSpace(n.scalar); s != "" {
			rows = append(rows, schema.Row{MajorSection: section, Summary: s})
		}
	}

	out := rows[:0]
	for _, r := range rows {
		r.MajorSection = strings.TrimSpace(r.MajorSection)
		r.Subsection = strings.TrimSpace(r.Subsection)
		r.Summary = strings.TrimSpace(r.Summary)
		if r.Summary == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

func looksLikeRow(n *node) bool {
	for _, k := range n.keys {
		c := canon(k)
		if sectionKeys[c] || subsectionKeys[c] || summaryKeys[c] {
			return true
		}
	}
	return false
}

func rowFrom(n *node, section string) schema.Row {
	var r schema.Row
	var extras []string
	for i, k := range n.keys {
		v := stringify(n.vals[i])
		c := canon(k)
		switch {
		case sectionKeys[c] && r.MajorSection == "":
			r.MajorSection = v
		case subsectionKeys[c] && r.Subsection == "":
			r.Subsection = v
		case summaryKeys[c] && r.Summary == "":
			r.Summary = v
		default:
			if v != "" {
				extras = append(extras, k+": "+v)
			}
		}
	}
	if r.MajorSection == "" {
		r.MajorSection = section
	}
	if r.Summary == "" {
		r.Summary = strings.Join(extras, "; ")
	}
	return r
}

func stringify(n *node) string {
	switch n.kind {
	case kindArray:
		parts := make([]string, 0, len(n.items))
		for _, it := range n.items {
			if s := stringify(it); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case kindObject:
		parts := make([]string, 0, len(n.keys))
		for i, k := range n.keys {
			if s := stringify(n.vals[i]); s != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return n.scalar
}
