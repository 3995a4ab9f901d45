// Package memory holds process-lifetime implementations of the repositories,
// used when no database is configured.
package memory

import (
	"context"
	"sync"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
)

type DatasetRepoImpl struct {
	mu       sync.RWMutex
	datasets map[string]*entity.Dataset
}

var _ repository.DatasetRepository = (*DatasetRepoImpl)(nil)

func NewDatasetRepo() *DatasetRepoImpl {
	return &DatasetRepoImpl{datasets: make(map[string]*entity.Dataset)}
}

func (r *DatasetRepoImpl) Save(_ context.Context, ds *entity.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasets[ds.ID] = ds
	return nil
}

func (r *DatasetRepoImpl) Find(_ context.Context, id string) (*entity.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.datasets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ds, nil
}

func (r *DatasetRepoImpl) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.datasets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.datasets, id)
	return nil
}
