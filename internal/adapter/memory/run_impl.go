package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
)

type RunRepoImpl struct {
	mu   sync.RWMutex
	runs map[string]entity.Run
	rows map[string]map[int]entity.OutputRow
}

var _ repository.RunRepository = (*RunRepoImpl)(nil)

func NewRunRepo() *RunRepoImpl {
	return &RunRepoImpl{
		runs: make(map[string]entity.Run),
		rows: make(map[string]map[int]entity.OutputRow),
	}
}

// SaveRun stores a copy so callers may keep mutating their run.
func (r *RunRepoImpl) SaveRun(_ context.Context, run *entity.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	cp.Columns = append([]string(nil), run.Columns...)
	r.runs[run.ID] = cp
	return nil
}

func (r *RunRepoImpl) SaveRows(_ context.Context, runID string, rows []entity.OutputRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byIndex, ok := r.rows[runID]
	if !ok {
		byIndex = make(map[int]entity.OutputRow, len(rows))
		r.rows[runID] = byIndex
	}
	for _, row := range rows {
		byIndex[row.Index] = row
	}
	return nil
}

func (r *RunRepoImpl) FindRun(_ context.Context, id string) (*entity.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &run, nil
}

func (r *RunRepoImpl) FindRows(_ context.Context, runID string) ([]entity.OutputRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.OutputRow, 0, len(r.rows[runID]))
	for _, row := range r.rows[runID] {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *RunRepoImpl) Ping(context.Context) error { return nil }
