package repository

import (
	"context"

	"github.com/user/enrich-service/internal/entity"
)

// DatasetRepository holds uploaded tables for the lifetime of the process.
type DatasetRepository interface {
	Save(ctx context.Context, ds *entity.Dataset) error
	// Find returns ErrNotFound when the dataset does not exist.
	Find(ctx context.Context, id string) (*entity.Dataset, error)
	Delete(ctx context.Context, id string) error
}
