package scraperapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
	"github.com/user/enrich-service/pkg/retry"
)

const resultsPage = `<html><body>
<div class="g"><a href="https://acme.test/contact"><h3>Contact</h3></a><div class="VwiC3b">Email info@acme.test</div></div>
</body></html>`

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func newTestSearcher(t *testing.T, srv *httptest.Server) *Searcher {
	t.Helper()
	s, err := NewSearcher(Options{
		APIKey:    "secret",
		BaseURL:   srv.URL,
		EngineURL: "https://www.google.com/search",
		Timeout:   200 * time.Millisecond,
		Retry:     fastPolicy(),
	}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestNewSearcher_RequiresAPIKey(t *testing.T) {
	_, err := NewSearcher(Options{BaseURL: "http://localhost"}, zap.NewNop())
	assert.ErrorIs(t, err, repository.ErrMissingAPIKey)
}

func TestSearch_Success(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	res := newTestSearcher(t, srv).Search(context.Background(), "Acme Corp email")

	require.Equal(t, entity.SearchSuccess, res.Status)
	assert.Equal(t, "secret", got.Get("api_key"))
	assert.Equal(t, "https://www.google.com/search?q=Acme+Corp+email", got.Get("url"))
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, res.Hits, 1)
	assert.Contains(t, res.Raw, "Email info@acme.test")
	assert.NoError(t, res.Err)
}

func TestSearch_AuthFailureIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	res := newTestSearcher(t, srv).Search(context.Background(), "q")

	assert.Equal(t, entity.SearchFailure, res.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.ErrorIs(t, res.Err, repository.ErrAuth)
	assert.NotContains(t, res.ErrorDetail(), "secret")
}

func TestSearch_RateLimitedThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	res := newTestSearcher(t, srv).Search(context.Background(), "q")

	assert.Equal(t, entity.SearchSuccess, res.Status)
	assert.Equal(t, 2, res.Attempts)
}

func TestSearch_ServerErrorExhaustsAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := newTestSearcher(t, srv).Search(context.Background(), "q")

	assert.Equal(t, entity.SearchFailure, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.ErrorIs(t, res.Err, repository.ErrTransient)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
}

func TestSearch_PerCallTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	res := newTestSearcher(t, srv).Search(context.Background(), "q")

	assert.Equal(t, entity.SearchFailure, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.ErrorIs(t, res.Err, repository.ErrTransient)
	assert.NotContains(t, res.ErrorDetail(), "secret")
}

func TestSearch_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestSearcher(t, srv).Search(ctx, "q")

	assert.Equal(t, entity.SearchFailure, res.Status)
	assert.True(t, errors.Is(res.Err, repository.ErrCanceled))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, time.Duration(0), retryAfter("soon"))
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	assert.Greater(t, retryAfter(future), 30*time.Second)
}
