// Package prompt builds extraction instructions for language models and
// reads structured fields back out of their free-text answers.
package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/user/enrich-service/internal/entity"
)

// Build returns the instruction sent to a generative model for one row.
func Build(spec entity.ExtractionSpec, context string) string {
	var b strings.Builder
	b.WriteString("Extract the following fields from the search results below.\n")
	b.WriteString("Respond with a single JSON object whose keys are exactly the field names. ")
	b.WriteString("Use null for any field the results do not mention. Do not guess.\n\n")
	b.WriteString("Fields:\n")
	for _, f := range spec.Fields {
		if f.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", f.Name)
		}
	}
	b.WriteString("\nSearch results:\n")
	b.WriteString(context)
	return b.String()
}

// Question phrases a field as a question for extractive QA models.
func Question(f entity.FieldSpec) string {
	if d := strings.TrimSpace(f.Description); d != "" {
		return d
	}
	return fmt.Sprintf("What is the %s?", strings.ReplaceAll(f.Name, "_", " "))
}

var linePattern = regexp.MustCompile(`^\s*(?:[-*•]\s*)?\**\s*([^:]+?)\s*\**\s*:\s*(.*?)\s*$`)

// Parse reads the fields of spec out of a model response. It accepts a JSON
// object, possibly fenced or surrounded by prose, or "name: value" lines.
// Fields that cannot be located are nil; Parse never fails.
func Parse(text string, spec entity.ExtractionSpec) entity.ExtractedFields {
	out := entity.NullFields(spec)

	byKey := make(map[string]string, len(spec.Fields))
	for _, f := range spec.Fields {
		byKey[normalize(f.Name)] = f.Name
	}

	found := parseJSON(text)
	if found == nil {
		found = parseLines(text)
	}
	for key, value := range found {
		name, ok := byKey[normalize(key)]
		if !ok || out[name] != nil {
			continue
		}
		out[name] = value
	}

	for _, f := range spec.Fields {
		out[f.Name] = Match(out[f.Name], f.Pattern)
	}
	return out
}

// Match narrows value to the first match of pattern. An empty pattern keeps
// value; no match, or an invalid pattern, yields nil.
func Match(value *string, pattern string) *string {
	if value == nil || pattern == "" {
		return value
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	m := re.FindString(*value)
	if m == "" {
		return nil
	}
	return &m
}

func parseJSON(text string) map[string]*string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil
	}
	out := make(map[string]*string, len(obj))
	for k, v := range obj {
		out[k] = clean(jsonString(v))
	}
	return out
}

func jsonString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s := jsonString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return entity.Stringify(x)
	}
}

func parseLines(text string) map[string]*string {
	out := map[string]*string{}
	for _, line := range strings.Split(text, "\n") {
		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := m[1]
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = clean(m[2])
	}
	return out
}

var nullish = map[string]bool{
	"":              true,
	"-":             true,
	"null":          true,
	"none":          true,
	"nil":           true,
	"n/a":           true,
	"na":            true,
	"unknown":       true,
	"not found":     true,
	"not mentioned": true,
	"not available": true,
	"not provided":  true,
}

func clean(s string) *string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`+"`")
	s = strings.TrimSpace(s)
	if nullish[strings.ToLower(strings.TrimRight(s, "."))] {
		return nil
	}
	return &s
}

func normalize(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.Trim(key, `"'*`+"`")
	return strings.NewReplacer(" ", "_", "-", "_").Replace(key)
}
