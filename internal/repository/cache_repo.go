package repository

import (
	"context"
	"time"

	"github.com/user/enrich-service/internal/entity"
)

// SearchCacheRepository keeps successful search results so repeated queries
// do not spend API quota.
type SearchCacheRepository interface {
	// Get returns the cached result for query, or ok=false on a miss.
	Get(ctx context.Context, query string) (result *entity.SearchResult, ok bool, err error)
	// Put stores a result with a specific expiry time.
	Put(ctx context.Context, result entity.SearchResult, expiry time.Duration) error
	// Ping checks connectivity for health reporting.
	Ping(ctx context.Context) error
}
