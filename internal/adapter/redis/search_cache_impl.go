package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/pkg/utils"
)

const searchCachePrefix = "search:"

// SearchCacheImpl implements repository.SearchCacheRepository on Redis
// strings holding JSON encoded results.
type SearchCacheImpl struct {
	client *redis.Client
}

func NewSearchCache(client *redis.Client) *SearchCacheImpl {
	return &SearchCacheImpl{client: client}
}

// generateKey creates a consistent Redis key for a query by hashing it.
func generateKey(query string) string {
	return fmt.Sprintf("%s%s", searchCachePrefix, utils.HashKey(query))
}

func (r *SearchCacheImpl) Get(ctx context.Context, query string) (*entity.SearchResult, bool, error) {
	raw, err := r.client.Get(ctx, generateKey(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	res, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// Put stores successful results only; failures are never cached.
func (r *SearchCacheImpl) Put(ctx context.Context, result entity.SearchResult, expiry time.Duration) error {
	if result.Failed() {
		return nil
	}
	raw, err := encode(result)
	if err != nil {
		return err
	}
	// SETEX is atomic and sets the key with an expiry.
	return r.client.SetEx(ctx, generateKey(result.Query), raw, expiry).Err()
}

func (r *SearchCacheImpl) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func encode(result entity.SearchResult) ([]byte, error) {
	result.Cached = false
	result.Attempts = 0
	return json.Marshal(result)
}

func decode(raw []byte) (*entity.SearchResult, error) {
	var res entity.SearchResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode cached search result: %w", err)
	}
	res.Cached = true
	return &res, nil
}
