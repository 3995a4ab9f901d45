// Package table loads, reshapes and exports the tabular datasets that feed
// the enrichment pipeline.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/user/enrich-service/internal/entity"
)

var ErrEmptyCSV = errors.New("empty csv")

// ReadCSV parses CSV with a header row into a Table. Cells are inferred as
// float64 or bool only when that conversion is lossless; empty cells are nil.
func ReadCSV(r io.Reader) (*entity.Table, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyCSV
	}

	headers, err := normalizeHeaders(records[0])
	if err != nil {
		return nil, err
	}

	table := &entity.Table{Columns: headers, Rows: make([]entity.Row, 0, len(records)-1)}
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		values := make(map[string]any, len(headers))
		for j, h := range headers {
			if j < len(rec) {
				values[h] = InferValue(rec[j])
			} else {
				values[h] = nil
			}
		}
		table.Rows = append(table.Rows, entity.Row{Index: len(table.Rows), Values: values})
	}
	return table, nil
}

func normalizeHeaders(raw []string) ([]string, error) {
	headers := make([]string, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("col_%d", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		seen[h] = true
		headers[i] = h
	}
	return headers, nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// InferValue converts a CSV cell into a typed value. Conversions that would
// change the text when written back (leading zeros, trailing decimals,
// "TRUE") keep the original string. NaN and infinities stay strings since
// they have no JSON encoding.
func InferValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && isFinite(f) && strconv.FormatFloat(f, 'f', -1, 64) == s {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// WriteCSV writes a header row followed by one line per row, in order.
func WriteCSV(w io.Writer, columns []string, rows []map[string]any) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	line := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			line[i] = entity.Stringify(row[c])
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes t as CSV.
func WriteTable(w io.Writer, t *entity.Table) error {
	rows := make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r.Values
	}
	return WriteCSV(w, t.Columns, rows)
}
