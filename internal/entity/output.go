package entity

// RowState tracks a row through the pipeline. A row only moves forward and
// always ends in RowAssembled.
type RowState string

const (
	RowPending   RowState = "pending"
	RowRendered  RowState = "rendered"
	RowSearched  RowState = "searched"
	RowExtracted RowState = "extracted"
	RowAssembled RowState = "assembled"
)

var rowTransitions = map[RowState][]RowState{
	RowPending:   {RowRendered, RowAssembled},
	RowRendered:  {RowSearched},
	RowSearched:  {RowExtracted},
	RowExtracted: {RowAssembled},
}

// CanAdvance reports whether a row in state s may move to next.
func (s RowState) CanAdvance(next RowState) bool {
	for _, allowed := range rowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RowOutcome summarises how a row finished.
type RowOutcome string

const (
	OutcomeOK            RowOutcome = "ok"
	OutcomeSearchFailed  RowOutcome = "search_failed"
	OutcomeExtractFailed RowOutcome = "extraction_failed"
	OutcomeRenderFailed  RowOutcome = "render_failed"
	OutcomeCanceled      RowOutcome = "canceled"
)

// OutputRow is an input row with the extracted fields appended. It keeps
// the index of the row it was built from.
type OutputRow struct {
	Index   int            `json:"index"`
	Values  map[string]any `json:"values"`
	State   RowState       `json:"state"`
	Outcome RowOutcome     `json:"outcome"`
	Query   string         `json:"query,omitempty"`
	Error   string         `json:"error,omitempty"`
}
