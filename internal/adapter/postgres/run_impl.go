package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
)

// Schema creates the tables used by RunRepoImpl.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	dataset_id  TEXT NOT NULL,
	template    TEXT NOT NULL,
	spec        JSONB NOT NULL,
	status      TEXT NOT NULL,
	total       INTEGER NOT NULL DEFAULT 0,
	done        INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	columns     TEXT[] NOT NULL DEFAULT '{}',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS run_rows (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	row_index INTEGER NOT NULL,
	state     TEXT NOT NULL,
	outcome   TEXT NOT NULL,
	query     TEXT NOT NULL DEFAULT '',
	error     TEXT NOT NULL DEFAULT '',
	row_values JSONB NOT NULL,
	PRIMARY KEY (run_id, row_index)
);
`

// RunRepoImpl provides a concrete implementation for the RunRepository interface using PostgreSQL.
type RunRepoImpl struct {
	db *pgxpool.Pool
}

var _ repository.RunRepository = (*RunRepoImpl)(nil)

func NewRunRepo(db *pgxpool.Pool) *RunRepoImpl {
	return &RunRepoImpl{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (r *RunRepoImpl) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, Schema)
	return err
}

func (r *RunRepoImpl) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// SaveRun creates or updates the run record.
func (r *RunRepoImpl) SaveRun(ctx context.Context, run *entity.Run) error {
	specJSON, err := json.Marshal(run.Spec)
	if err != nil {
		return err
	}
	columns := run.Columns
	if columns == nil {
		columns = []string{}
	}

	query := `
		INSERT INTO runs (id, dataset_id, template, spec, status, total, done, failed, columns, error, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total = EXCLUDED.total,
			done = EXCLUDED.done,
			failed = EXCLUDED.failed,
			columns = EXCLUDED.columns,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at;
	`
	_, err = r.db.Exec(ctx, query,
		run.ID,
		run.DatasetID,
		run.Template,
		specJSON,
		string(run.Status),
		run.Total,
		run.Done,
		run.Failed,
		columns,
		run.Error,
		run.CreatedAt,
		run.FinishedAt,
	)
	return err
}

// SaveRows upserts rows by (run_id, row_index) inside one transaction.
func (r *RunRepoImpl) SaveRows(ctx context.Context, runID string, rows []entity.OutputRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, row := range rows {
		values, err := json.Marshal(row.Values)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", row.Index, err)
		}
		batch.Queue(`INSERT INTO run_rows (run_id, row_index, state, outcome, query, error, row_values)
		             VALUES ($1, $2, $3, $4, $5, $6, $7)
		             ON CONFLICT (run_id, row_index) DO UPDATE SET
		               state = EXCLUDED.state, outcome = EXCLUDED.outcome, query = EXCLUDED.query,
		               error = EXCLUDED.error, row_values = EXCLUDED.row_values`,
			runID, row.Index, string(row.State), string(row.Outcome), row.Query, row.Error, values)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindRun retrieves a run by ID.
func (r *RunRepoImpl) FindRun(ctx context.Context, id string) (*entity.Run, error) {
	query := `
		SELECT id, dataset_id, template, spec, status, total, done, failed, columns, error, created_at, finished_at
		FROM runs
		WHERE id = $1;
	`
	var run entity.Run
	var specJSON []byte
	var status string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.DatasetID,
		&run.Template,
		&specJSON,
		&status,
		&run.Total,
		&run.Done,
		&run.Failed,
		&run.Columns,
		&run.Error,
		&run.CreatedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Status = entity.RunStatus(status)
	if err := json.Unmarshal(specJSON, &run.Spec); err != nil {
		return nil, err
	}
	return &run, nil
}

// FindRows returns the output rows of a run ordered by index.
func (r *RunRepoImpl) FindRows(ctx context.Context, runID string) ([]entity.OutputRow, error) {
	query := `
		SELECT row_index, state, outcome, query, error, row_values
		FROM run_rows
		WHERE run_id = $1
		ORDER BY row_index ASC;
	`
	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.OutputRow
	for rows.Next() {
		var row entity.OutputRow
		var state, outcome string
		var values []byte
		if err := rows.Scan(&row.Index, &state, &outcome, &row.Query, &row.Error, &values); err != nil {
			return nil, err
		}
		row.State = entity.RowState(state)
		row.Outcome = entity.RowOutcome(outcome)
		if err := json.Unmarshal(values, &row.Values); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", row.Index, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
