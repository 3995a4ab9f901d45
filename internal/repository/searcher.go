package repository

import (
	"context"

	"github.com/user/enrich-service/internal/entity"
)

// Searcher sends one rendered query to the web-search API.
// Failures are reported in the returned result, never as a panic or error
// return, so one row cannot abort the others.
type Searcher interface {
	Search(ctx context.Context, query string) entity.SearchResult
}
