package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
	"github.com/user/enrich-service/internal/table"
	"github.com/user/enrich-service/internal/template"
	"github.com/user/enrich-service/pkg/metrics"
)

var (
	ErrRunFinished       = errors.New("run already finished")
	ErrRunInProgress     = errors.New("run is still in progress")
	ErrSheetsUnavailable = errors.New("sheet write-back is not configured")
)

// SheetWriter replaces the contents of the worksheet behind a sheet link.
type SheetWriter interface {
	Write(ctx context.Context, sheetURL string, columns []string, rows []map[string]any) error
}

const (
	StatusColumn = "_status"
	ErrorColumn  = "_error"
)

type StartRequest struct {
	DatasetID string             `json:"dataset_id"`
	Template  string             `json:"template"`
	Fields    []entity.FieldSpec `json:"fields"`
}

// RunManager starts pipeline runs in the background and serves their
// progress and output.
type RunManager struct {
	pipeline *Pipeline
	datasets repository.DatasetRepository
	runs     repository.RunRepository
	sheets   SheetWriter
	logger   *zap.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunManager builds a run manager. sheets may be nil when sheet
// write-back is not configured.
func NewRunManager(pipeline *Pipeline, datasets repository.DatasetRepository, runs repository.RunRepository, sheets SheetWriter, logger *zap.Logger) *RunManager {
	return &RunManager{
		pipeline: pipeline,
		datasets: datasets,
		runs:     runs,
		sheets:   sheets,
		logger:   logger,
		active:   make(map[string]context.CancelFunc),
	}
}

// Start validates the request and launches the run. Validation failures
// (unknown dataset, TemplateError, ErrInvalidSpec) are returned before any
// row is dispatched.
func (m *RunManager) Start(ctx context.Context, req StartRequest) (*entity.Run, error) {
	ds, err := m.datasets.Find(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.Parse(req.Template)
	if err != nil {
		return nil, err
	}
	if err := tmpl.Validate(ds.Table.Columns); err != nil {
		return nil, err
	}
	spec := entity.ExtractionSpec{Fields: req.Fields}
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}

	columns, _ := OutputColumns(ds.Table.Columns, spec)
	run := &entity.Run{
		ID:        uuid.NewString(),
		DatasetID: ds.ID,
		Template:  req.Template,
		Spec:      spec,
		Status:    entity.RunRunning,
		Total:     ds.Table.Len(),
		Columns:   columns,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.active[run.ID] = cancel
	m.mu.Unlock()

	snapshot := *run
	m.wg.Add(1)
	go m.execute(runCtx, run, ds.Table, tmpl)

	m.logger.Info("Run started", zap.String("run_id", run.ID), zap.String("dataset_id", ds.ID), zap.Int("rows", run.Total))
	return &snapshot, nil
}

func (m *RunManager) execute(ctx context.Context, run *entity.Run, tbl *entity.Table, tmpl *template.Template) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		if cancel, ok := m.active[run.ID]; ok {
			cancel()
			delete(m.active, run.ID)
		}
		m.mu.Unlock()
	}()

	metrics.RunsInProgress.Inc()
	defer metrics.RunsInProgress.Dec()

	// Persistence must outlive cancellation of the run itself.
	store := context.Background()

	onRow := func(row entity.OutputRow) {
		if err := m.runs.SaveRows(store, run.ID, []entity.OutputRow{row}); err != nil {
			m.logger.Error("Failed to save output row", zap.String("run_id", run.ID), zap.Int("row", row.Index), zap.Error(err))
		}
		run.Done++
		if row.Outcome != entity.OutcomeOK {
			run.Failed++
		}
		if err := m.runs.SaveRun(store, run); err != nil {
			m.logger.Warn("Failed to save run progress", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	res, err := m.pipeline.Run(ctx, Request{Table: tbl, Template: tmpl, Spec: run.Spec, OnRow: onRow})

	now := time.Now().UTC()
	run.FinishedAt = &now
	switch {
	case err != nil:
		run.Status = entity.RunFailed
		run.Error = err.Error()
	case res.Canceled:
		run.Status = entity.RunCanceled
	default:
		run.Status = entity.RunCompleted
	}
	if err := m.runs.SaveRun(store, run); err != nil {
		m.logger.Error("Failed to save finished run", zap.String("run_id", run.ID), zap.Error(err))
	}
	m.logger.Info("Run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("rows", run.Done),
		zap.Int("failed", run.Failed),
	)
}

func (m *RunManager) Get(ctx context.Context, id string) (*entity.Run, error) {
	return m.runs.FindRun(ctx, id)
}

// Cancel stops dispatching rows of a running run. Rows not yet processed
// finish as canceled.
func (m *RunManager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	cancel, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		cancel()
		m.logger.Info("Run cancel requested", zap.String("run_id", id))
		return nil
	}
	if _, err := m.runs.FindRun(ctx, id); err != nil {
		return err
	}
	return ErrRunFinished
}

// Rows returns the output rows written so far, in input order.
func (m *RunManager) Rows(ctx context.Context, id string) ([]entity.OutputRow, error) {
	if _, err := m.runs.FindRun(ctx, id); err != nil {
		return nil, err
	}
	return m.runs.FindRows(ctx, id)
}

// Export writes the output rows of a run as CSV.
func (m *RunManager) Export(ctx context.Context, id string, w io.Writer, withStatus bool) error {
	run, err := m.runs.FindRun(ctx, id)
	if err != nil {
		return err
	}
	rows, err := m.runs.FindRows(ctx, id)
	if err != nil {
		return err
	}
	return WriteRows(w, run.Columns, rows, withStatus)
}

// WriteRows writes output rows as CSV under columns. withStatus appends the
// per-row outcome and error detail.
func WriteRows(w io.Writer, columns []string, rows []entity.OutputRow, withStatus bool) error {
	columns, values := Records(columns, rows, withStatus)
	return table.WriteCSV(w, columns, values)
}

// Records flattens output rows into the column list and cell maps shared by
// CSV and sheet exports.
func Records(columns []string, rows []entity.OutputRow, withStatus bool) ([]string, []map[string]any) {
	columns = append([]string(nil), columns...)
	if withStatus {
		columns = append(columns, StatusColumn, ErrorColumn)
	}
	values := make([]map[string]any, len(rows))
	for i, row := range rows {
		values[i] = row.Values
		if withStatus {
			v := make(map[string]any, len(row.Values)+2)
			for k, val := range row.Values {
				v[k] = val
			}
			v[StatusColumn] = string(row.Outcome)
			v[ErrorColumn] = row.Error
			values[i] = v
		}
	}
	return columns, values
}

// WriteSheet overwrites a Google Sheet with the output of a finished run and
// returns the number of rows written.
func (m *RunManager) WriteSheet(ctx context.Context, id, sheetURL string, withStatus bool) (int, error) {
	if m.sheets == nil {
		return 0, ErrSheetsUnavailable
	}
	run, err := m.runs.FindRun(ctx, id)
	if err != nil {
		return 0, err
	}
	if run.Status == entity.RunRunning {
		return 0, ErrRunInProgress
	}
	rows, err := m.runs.FindRows(ctx, id)
	if err != nil {
		return 0, err
	}
	columns, values := Records(run.Columns, rows, withStatus)
	if err := m.sheets.Write(ctx, sheetURL, columns, values); err != nil {
		return 0, err
	}
	m.logger.Info("Run written to sheet", zap.String("run_id", id), zap.Int("rows", len(rows)))
	return len(rows), nil
}

// Wait blocks until every started run has finished.
func (m *RunManager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels all active runs and waits for them to record their
// final state, or for ctx to expire.
func (m *RunManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, cancel := range m.active {
		cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
