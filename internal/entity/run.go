package entity

import "time"

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCanceled  RunStatus = "canceled"
	RunFailed    RunStatus = "failed"
)

// Run is one asynchronous pipeline execution over a dataset.
type Run struct {
	ID         string         `json:"id"`
	DatasetID  string         `json:"dataset_id"`
	Template   string         `json:"template"`
	Spec       ExtractionSpec `json:"spec"`
	Status     RunStatus      `json:"status"`
	Total      int            `json:"total"`
	Done       int            `json:"done"`
	Failed     int            `json:"failed"`
	Columns    []string       `json:"columns,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Dataset is an uploaded or imported table held for the session.
type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Source    string    `json:"source"`
	Table     *Table    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
