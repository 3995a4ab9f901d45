package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
	"github.com/user/enrich-service/internal/table"
	"github.com/user/enrich-service/internal/template"
)

// SheetImporter loads a shared spreadsheet as a table.
type SheetImporter interface {
	Import(ctx context.Context, sheetURL string) (*entity.Table, error)
}

// DatasetManager holds uploaded tables and the read-only views over them.
type DatasetManager struct {
	repo   repository.DatasetRepository
	sheets SheetImporter
	logger *zap.Logger
}

func NewDatasetManager(repo repository.DatasetRepository, sheets SheetImporter, logger *zap.Logger) *DatasetManager {
	return &DatasetManager{repo: repo, sheets: sheets, logger: logger}
}

// Upload parses CSV from r and stores it as a new dataset.
func (m *DatasetManager) Upload(ctx context.Context, name string, r io.Reader) (*entity.Dataset, error) {
	tbl, err := table.ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return m.save(ctx, name, "upload", tbl)
}

// ImportSheet reads a publicly shared Google Sheet.
func (m *DatasetManager) ImportSheet(ctx context.Context, sheetURL string) (*entity.Dataset, error) {
	if m.sheets == nil {
		return nil, fmt.Errorf("sheet import is not configured")
	}
	tbl, err := m.sheets.Import(ctx, sheetURL)
	if err != nil {
		return nil, err
	}
	return m.save(ctx, sheetURL, "sheets", tbl)
}

func (m *DatasetManager) save(ctx context.Context, name, source string, tbl *entity.Table) (*entity.Dataset, error) {
	ds := &entity.Dataset{
		ID:        uuid.NewString(),
		Name:      name,
		Source:    source,
		Table:     tbl,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.repo.Save(ctx, ds); err != nil {
		return nil, err
	}
	m.logger.Info("Dataset stored",
		zap.String("dataset_id", ds.ID),
		zap.String("source", source),
		zap.Int("rows", tbl.Len()),
		zap.Int("columns", len(tbl.Columns)),
	)
	return ds, nil
}

func (m *DatasetManager) Get(ctx context.Context, id string) (*entity.Dataset, error) {
	return m.repo.Find(ctx, id)
}

// Filter stores the rows of dataset id matching cond as a new dataset.
func (m *DatasetManager) Filter(ctx context.Context, id string, cond table.Condition) (*entity.Dataset, error) {
	ds, err := m.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	tbl, err := table.Filter(ds.Table, cond)
	if err != nil {
		return nil, err
	}
	value := cond.Value
	if cond.Op == "in" {
		value = strings.Join(cond.Values, "|")
	}
	name := fmt.Sprintf("%s [%s %s %s]", ds.Name, cond.Column, cond.Op, value)
	return m.save(ctx, name, "filter:"+ds.ID, tbl)
}

func (m *DatasetManager) Histogram(ctx context.Context, id, column string, bins int) (*table.Histogram, error) {
	ds, err := m.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return table.BuildHistogram(ds.Table, column, bins)
}

func (m *DatasetManager) Unique(ctx context.Context, id, column string) ([]string, error) {
	ds, err := m.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return table.Unique(ds.Table, column)
}

// PreviewQueries renders the template for every row without calling any
// external service.
func (m *DatasetManager) PreviewQueries(ctx context.Context, id, raw string) ([]string, error) {
	ds, err := m.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.Parse(raw)
	if err != nil {
		return nil, err
	}
	return template.RenderAll(tmpl, ds.Table)
}

func (m *DatasetManager) Delete(ctx context.Context, id string) error {
	return m.repo.Delete(ctx, id)
}
