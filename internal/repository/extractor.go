package repository

import (
	"context"

	"github.com/user/enrich-service/internal/entity"
)

// Extractor asks a hosted language model to pull the fields of spec out of
// a successful search result. A field that cannot be located is nil in the
// returned map; an error means the model call itself failed.
type Extractor interface {
	Extract(ctx context.Context, result entity.SearchResult, spec entity.ExtractionSpec) (entity.ExtractedFields, error)
}
