package table

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/enrich-service/internal/entity"
)

var (
	ErrUnknownColumn    = errors.New("unknown column")
	ErrInvalidCondition = errors.New("invalid filter condition")
)

// Condition keeps rows whose Column compares to Value with Op.
// Op is one of eq, neq, contains, gt, gte, lt, lte, or in, which matches
// any of Values. eq, neq and in compare numerically when both sides are
// numbers, so "1.0" matches a cell holding 1.
type Condition struct {
	Column string   `json:"column"`
	Op     string   `json:"op"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Filter returns a new table holding the matching rows, re-indexed from 0.
func Filter(t *entity.Table, cond Condition) (*entity.Table, error) {
	if !t.HasColumn(cond.Column) {
		return nil, fmt.Errorf("%w %q", ErrUnknownColumn, cond.Column)
	}
	match, err := matcher(cond)
	if err != nil {
		return nil, err
	}

	out := &entity.Table{Columns: append([]string(nil), t.Columns...)}
	for _, r := range t.Rows {
		if !match(r.Values[cond.Column]) {
			continue
		}
		values := make(map[string]any, len(r.Values))
		for k, v := range r.Values {
			values[k] = v
		}
		out.Rows = append(out.Rows, entity.Row{Index: len(out.Rows), Values: values})
	}
	return out, nil
}

func matcher(cond Condition) (func(any) bool, error) {
	switch cond.Op {
	case "eq":
		return equals(cond.Value), nil
	case "neq":
		eq := equals(cond.Value)
		return func(v any) bool { return !eq(v) }, nil
	case "in":
		if len(cond.Values) == 0 {
			return nil, fmt.Errorf("%w: op \"in\" needs at least one value", ErrInvalidCondition)
		}
		matchers := make([]func(any) bool, len(cond.Values))
		for i, want := range cond.Values {
			matchers[i] = equals(want)
		}
		return func(v any) bool {
			for _, m := range matchers {
				if m(v) {
					return true
				}
			}
			return false
		}, nil
	case "contains":
		needle := strings.ToLower(cond.Value)
		return func(v any) bool { return strings.Contains(strings.ToLower(entity.Stringify(v)), needle) }, nil
	case "gt", "gte", "lt", "lte":
		want, err := strconv.ParseFloat(cond.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: op %q needs a numeric value: %v", ErrInvalidCondition, cond.Op, err)
		}
		return func(v any) bool {
			got, ok := toFloat(v)
			if !ok {
				return false
			}
			switch cond.Op {
			case "gt":
				return got > want
			case "gte":
				return got >= want
			case "lt":
				return got < want
			default:
				return got <= want
			}
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidCondition, cond.Op)
	}
}

// equals matches numeric cells by value when want parses as a number, and
// any other cell by its text.
func equals(want string) func(any) bool {
	n, err := strconv.ParseFloat(strings.TrimSpace(want), 64)
	numeric := err == nil
	return func(v any) bool {
		if numeric {
			switch got := v.(type) {
			case float64:
				return got == n
			case int:
				return float64(got) == n
			}
		}
		return entity.Stringify(v) == want
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Unique returns the distinct stringified values of column in order of first
// appearance. Empty cells are skipped.
func Unique(t *entity.Table, column string) ([]string, error) {
	if !t.HasColumn(column) {
		return nil, fmt.Errorf("%w %q", ErrUnknownColumn, column)
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.Rows {
		s := entity.Stringify(r.Values[column])
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}
