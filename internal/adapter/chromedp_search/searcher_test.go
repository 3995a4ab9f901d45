package chromedp_search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/enrich-service/internal/repository"
)

func TestSearchURL(t *testing.T) {
	got, err := searchURL("https://duckduckgo.com/html/?kl=us-en", "Acme & Co")
	require.NoError(t, err)
	assert.Equal(t, "https://duckduckgo.com/html/?kl=us-en&q=Acme+%26+Co", got)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("q", 0))
	assert.NoError(t, classify("q", 200))

	err := classify("q", 403)
	assert.ErrorIs(t, err, repository.ErrAuth)

	err = classify("q", 429)
	assert.ErrorIs(t, err, repository.ErrRateLimited)

	err = classify("q", 503)
	assert.ErrorIs(t, err, repository.ErrTransient)
	assert.Equal(t, repository.KindTransient, repository.KindOf(err))
}

func TestCheckoutBlocksWhenPoolExhausted(t *testing.T) {
	s := NewChromedpSearcher(Options{MaxConcurrency: 1}, zap.NewNop())
	defer s.Close()
	require.Len(t, s.allocators, 1)

	a, err := s.checkout(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.checkout(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *allocator, 1)
	go func() {
		b, err := s.checkout(context.Background())
		assert.NoError(t, err)
		got <- b
	}()
	s.release(a)
	select {
	case b := <-got:
		assert.Same(t, a, b)
	case <-time.After(time.Second):
		t.Fatal("checkout did not resume after release")
	}
}

func TestCheckoutAfterClose(t *testing.T) {
	s := NewChromedpSearcher(Options{MaxConcurrency: 0}, zap.NewNop())
	assert.Len(t, s.allocators, 1, "concurrency below one still gets an allocator")

	a, err := s.checkout(context.Background())
	require.NoError(t, err)

	waiting := make(chan error, 1)
	go func() {
		_, err := s.checkout(context.Background())
		waiting <- err
	}()
	s.Close()
	s.Close()
	assert.ErrorIs(t, <-waiting, errClosed)

	s.release(a)
	_, err = s.checkout(context.Background())
	assert.ErrorIs(t, err, errClosed)
}

func TestLoadFailsWhenClosed(t *testing.T) {
	s := NewChromedpSearcher(Options{MaxConcurrency: 1}, zap.NewNop())
	s.Close()

	_, _, err := s.load(context.Background(), "acme")
	assert.Equal(t, repository.KindCanceled, repository.KindOf(err))
}
