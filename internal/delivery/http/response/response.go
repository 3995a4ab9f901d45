package response

import (
	"time"

	"github.com/user/enrich-service/internal/entity"
)

const DefaultPreviewRows = 20

type DatasetResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Source    string           `json:"source"`
	Columns   []string         `json:"columns"`
	RowCount  int              `json:"row_count"`
	Preview   []map[string]any `json:"preview"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewDatasetResponse describes ds with at most limit preview rows.
func NewDatasetResponse(ds *entity.Dataset, limit int) DatasetResponse {
	if limit <= 0 {
		limit = DefaultPreviewRows
	}
	rows := ds.Table.Rows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	preview := make([]map[string]any, len(rows))
	for i, r := range rows {
		preview[i] = r.Values
	}
	return DatasetResponse{
		ID:        ds.ID,
		Name:      ds.Name,
		Source:    ds.Source,
		Columns:   ds.Table.Columns,
		RowCount:  ds.Table.Len(),
		Preview:   preview,
		CreatedAt: ds.CreatedAt,
	}
}

type QueriesResponse struct {
	Queries []string `json:"queries"`
}

type UniqueResponse struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

type RowsResponse struct {
	RunID   string             `json:"run_id"`
	Columns []string           `json:"columns"`
	Rows    []entity.OutputRow `json:"rows"`
}

type SheetResponse struct {
	RunID string `json:"run_id"`
	URL   string `json:"url"`
	Rows  int    `json:"rows"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
