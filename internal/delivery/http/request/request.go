package request

import "github.com/user/enrich-service/internal/entity"

type ImportSheetRequest struct {
	URL string `json:"url"`
}

// WriteSheetRequest names the sheet to overwrite. Status adds the per-row
// outcome columns.
type WriteSheetRequest struct {
	URL    string `json:"url"`
	Status bool   `json:"status"`
}

type FilterRequest struct {
	Column string   `json:"column"`
	Op     string   `json:"op"`
	Value  string   `json:"value"`
	Values []string `json:"values"`
}

type PreviewQueriesRequest struct {
	Template string `json:"template"`
}

type StartRunRequest struct {
	DatasetID string             `json:"dataset_id"`
	Template  string             `json:"template"`
	Fields    []entity.FieldSpec `json:"fields"`
}
