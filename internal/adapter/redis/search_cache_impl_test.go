package redis

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/enrich-service/internal/entity"
)

func TestGenerateKey(t *testing.T) {
	k := generateKey("Acme email")
	assert.True(t, strings.HasPrefix(k, searchCachePrefix))
	assert.Equal(t, k, generateKey("Acme email"))
	assert.NotEqual(t, k, generateKey("Acme phone"))
}

func TestEncodeDecode(t *testing.T) {
	in := entity.SearchResult{
		Query: "q", Status: entity.SearchSuccess, Raw: "text", StatusCode: 200, Attempts: 2,
		Hits: []entity.SearchHit{{Title: "t", Link: "https://x.test", Snippet: "s"}},
	}
	raw, err := encode(in)
	require.NoError(t, err)

	out, err := decode(raw)
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Zero(t, out.Attempts)
	assert.Equal(t, in.Hits, out.Hits)
	assert.Equal(t, "text", out.Raw)

	_, err = decode([]byte("{"))
	assert.Error(t, err)
}

// Runs against a live server when REDIS_TEST_ADDR is set.
func TestSearchCache_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	cache := NewSearchCache(client)
	require.NoError(t, cache.Ping(ctx))

	query := "cache-test-" + time.Now().Format(time.RFC3339Nano)
	require.NoError(t, cache.Put(ctx, entity.SearchResult{Query: query, Status: entity.SearchFailure}, time.Minute))
	_, ok, err := cache.Get(ctx, query)
	require.NoError(t, err)
	assert.False(t, ok, "failures are not cached")

	require.NoError(t, cache.Put(ctx, entity.SearchResult{Query: query, Status: entity.SearchSuccess, Raw: "r"}, time.Minute))
	got, ok, err := cache.Get(ctx, query)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r", got.Raw)
	client.Del(ctx, generateKey(query))
}
