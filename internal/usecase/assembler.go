package usecase

import (
	"fmt"

	"github.com/user/enrich-service/internal/entity"
)

const collisionSuffix = "_extracted"

// AssemblyError is a broken row contract, such as a state transition that
// skips a stage. It means a bug, not an upstream failure.
type AssemblyError struct {
	Row  int
	From entity.RowState
	To   entity.RowState
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("row %d: illegal transition %s -> %s", e.Row, e.From, e.To)
}

// OutputColumns lists the input columns followed by one column per
// extracted field. names maps each field name to its output column: a field
// colliding with an input column (or an earlier field) is written to
// "<name>_extracted", then "<name>_extracted_2" and so on.
func OutputColumns(input []string, spec entity.ExtractionSpec) ([]string, map[string]string) {
	taken := make(map[string]bool, len(input)+len(spec.Fields))
	columns := make([]string, 0, len(input)+len(spec.Fields))
	for _, c := range input {
		taken[c] = true
		columns = append(columns, c)
	}

	names := make(map[string]string, len(spec.Fields))
	for _, f := range spec.Fields {
		col := f.Name
		if taken[col] {
			col = f.Name + collisionSuffix
			for n := 2; taken[col]; n++ {
				col = fmt.Sprintf("%s%s_%d", f.Name, collisionSuffix, n)
			}
		}
		taken[col] = true
		names[f.Name] = col
		columns = append(columns, col)
	}
	return columns, names
}

// Assemble returns the input values of row with fields appended under their
// output columns. Fields missing from fields are nil. The input row is not
// modified.
func Assemble(row entity.Row, fields entity.ExtractedFields, names map[string]string) map[string]any {
	values := make(map[string]any, len(row.Values)+len(names))
	for k, v := range row.Values {
		values[k] = v
	}
	for field, col := range names {
		if v := fields[field]; v != nil {
			values[col] = *v
		} else {
			values[col] = nil
		}
	}
	return values
}

// rowProgress drives one OutputRow through the row state machine.
type rowProgress struct {
	row entity.OutputRow
}

func newRowProgress(index int) *rowProgress {
	return &rowProgress{row: entity.OutputRow{Index: index, State: entity.RowPending}}
}

func (p *rowProgress) advance(next entity.RowState) error {
	if !p.row.State.CanAdvance(next) {
		return &AssemblyError{Row: p.row.Index, From: p.row.State, To: next}
	}
	p.row.State = next
	return nil
}
