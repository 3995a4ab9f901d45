package repository

import (
	"context"

	"github.com/user/enrich-service/internal/entity"
)

// RunRepository persists pipeline runs and their output rows.
type RunRepository interface {
	// SaveRun creates or updates the run record.
	SaveRun(ctx context.Context, run *entity.Run) error
	// SaveRows upserts output rows of a run by row index.
	SaveRows(ctx context.Context, runID string, rows []entity.OutputRow) error
	// FindRun retrieves a run by ID. Returns ErrNotFound when missing.
	FindRun(ctx context.Context, id string) (*entity.Run, error)
	// FindRows returns the output rows of a run ordered by index.
	FindRows(ctx context.Context, runID string) ([]entity.OutputRow, error)
	Ping(ctx context.Context) error
}
