package entity

import (
	"strconv"
)

// Row is a single record of an uploaded table, identified by its position.
// Values hold string, float64, bool or nil.
type Row struct {
	Index  int            `json:"index"`
	Values map[string]any `json:"values"`
}

// Get returns the cell for column and whether the column exists in the row.
func (r Row) Get(column string) (any, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Table is an ordered set of rows sharing the same columns.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// HasColumn reports whether name is one of the table columns.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Stringify renders a cell the way it appears in queries and CSV exports.
// nil renders as the empty string.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case interface{ String() string }:
		return val.String()
	default:
		return ""
	}
}
