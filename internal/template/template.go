// Package template renders one search query per table row from a string
// with {column} placeholders. "{{" and "}}" stand for literal braces.
//
// Cells that are nil render as the empty string. A placeholder naming a
// column that is not part of the row is a *TemplateError.
package template

import (
	"fmt"
	"strings"

	"github.com/user/enrich-service/internal/entity"
)

// TemplateError reports a malformed template or a placeholder that does not
// resolve to a column.
type TemplateError struct {
	Template string
	Column   string
	Reason   string
}

func (e *TemplateError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("template %q: %s %q", e.Template, e.Reason, e.Column)
	}
	return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
}

type part struct {
	literal     string
	placeholder string
}

// Template is a parsed query template. It is safe for concurrent use.
type Template struct {
	raw   string
	parts []part
}

// Parse tokenises raw into literal text and placeholders.
func Parse(raw string) (*Template, error) {
	t := &Template{raw: raw}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch c {
		case '{':
			if i+1 < len(raw) && raw[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexAny(raw[i+1:], "{}")
			if end < 0 || raw[i+1+end] != '}' {
				return nil, &TemplateError{Template: raw, Reason: fmt.Sprintf("unclosed placeholder at offset %d", i)}
			}
			name := strings.TrimSpace(raw[i+1 : i+1+end])
			if name == "" {
				return nil, &TemplateError{Template: raw, Reason: fmt.Sprintf("empty placeholder at offset %d", i)}
			}
			flush()
			t.parts = append(t.parts, part{placeholder: name})
			i += end + 1
		case '}':
			if i+1 < len(raw) && raw[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, &TemplateError{Template: raw, Reason: fmt.Sprintf("unmatched '}' at offset %d", i)}
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

// MustParse is like Parse but panics on error.
func MustParse(raw string) *Template {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the template source.
func (t *Template) String() string {
	return t.raw
}

// Placeholders returns the distinct column names referenced by the template
// in order of first appearance.
func (t *Template) Placeholders() []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range t.parts {
		if p.placeholder == "" || seen[p.placeholder] {
			continue
		}
		seen[p.placeholder] = true
		names = append(names, p.placeholder)
	}
	return names
}

// Validate checks that every placeholder is one of columns.
func (t *Template) Validate(columns []string) error {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	for _, name := range t.Placeholders() {
		if !known[name] {
			return &TemplateError{Template: t.raw, Column: name, Reason: "unknown column"}
		}
	}
	return nil
}

// Render substitutes the row's values into the template.
func (t *Template) Render(row entity.Row) (string, error) {
	var b strings.Builder
	for _, p := range t.parts {
		if p.placeholder == "" {
			b.WriteString(p.literal)
			continue
		}
		v, ok := row.Get(p.placeholder)
		if !ok {
			return "", &TemplateError{Template: t.raw, Column: p.placeholder, Reason: "unknown column"}
		}
		b.WriteString(entity.Stringify(v))
	}
	return b.String(), nil
}

// RenderAll validates t against the table and renders every row.
func RenderAll(t *Template, table *entity.Table) ([]string, error) {
	if err := t.Validate(table.Columns); err != nil {
		return nil, err
	}
	queries := make([]string, len(table.Rows))
	for i, row := range table.Rows {
		q, err := t.Render(row)
		if err != nil {
			return nil, err
		}
		queries[i] = q
	}
	return queries, nil
}
