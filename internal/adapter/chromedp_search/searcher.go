// Package chromedp_search loads search results pages in a headless browser,
// for engines that refuse plain HTTP clients.
package chromedp_search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/enrich-service/internal/adapter/serp"
	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
	"github.com/user/enrich-service/pkg/metrics"
	"github.com/user/enrich-service/pkg/retry"
	"github.com/user/enrich-service/pkg/utils"
)

const backendLabel = "browser"

type Options struct {
	EngineURL       string
	PageLoadTimeout time.Duration
	MaxConcurrency  int
	Retry           retry.Policy
	Parse           serp.Options
}

type allocator struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// ChromedpSearcher holds a fixed set of browser allocators. A search checks
// one out for the page load, so at most MaxConcurrency browsers run.
type ChromedpSearcher struct {
	opts   Options
	agents *utils.UserAgents
	logger *zap.Logger

	pool       chan *allocator
	allocators []*allocator
	done       chan struct{}
	closeOnce  sync.Once
}

var _ repository.Searcher = (*ChromedpSearcher)(nil)

var errClosed = errors.New("browser searcher closed")

// NewChromedpSearcher creates a searcher backed by MaxConcurrency headless
// browser allocators (at least one). Close releases them.
func NewChromedpSearcher(opts Options, logger *zap.Logger) *ChromedpSearcher {
	if opts.EngineURL == "" {
		opts.EngineURL = "https://www.google.com/search"
	}
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = 60 * time.Second
	}
	if opts.Parse.BaseURL == "" {
		opts.Parse.BaseURL = opts.EngineURL
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}

	s := &ChromedpSearcher{
		opts:   opts,
		agents: utils.NewUserAgents(time.Now().UnixNano()),
		logger: logger,
		pool:   make(chan *allocator, opts.MaxConcurrency),
		done:   make(chan struct{}),
	}
	for i := 0; i < opts.MaxConcurrency; i++ {
		a := s.newAllocator()
		s.allocators = append(s.allocators, a)
		s.pool <- a
	}
	return s
}

// newAllocator only prepares the browser options; Chrome starts on the
// first page load.
func (s *ChromedpSearcher) newAllocator() *allocator {
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(s.agents.Next()),
	)
	ctx, cancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	return &allocator{ctx: ctx, cancel: cancel}
}

// checkout blocks until an allocator is free, ctx ends or the searcher is
// closed.
func (s *ChromedpSearcher) checkout(ctx context.Context) (*allocator, error) {
	select {
	case <-s.done:
		return nil, errClosed
	default:
	}
	select {
	case a := <-s.pool:
		return a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, errClosed
	}
}

func (s *ChromedpSearcher) release(a *allocator) {
	s.pool <- a
}

// Close shuts down every browser the searcher started. Searches waiting for
// an allocator fail.
func (s *ChromedpSearcher) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		for _, a := range s.allocators {
			a.cancel()
		}
	})
}

func (s *ChromedpSearcher) Search(ctx context.Context, query string) entity.SearchResult {
	start := time.Now()
	result := entity.SearchResult{Query: query}

	var page string
	var status int
	attempts, err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			metrics.RetriesTotal.WithLabelValues("search").Inc()
		}
		html, code, err := s.load(ctx, query)
		status = code
		if err != nil {
			return err
		}
		page = html
		return nil
	})
	result.Attempts = attempts
	result.StatusCode = status

	if err == nil {
		hits, raw, perr := serp.Parse(page, s.opts.Parse)
		if perr != nil {
			err = searchError(query, repository.KindMalformed, status, perr)
		} else {
			result.Status = entity.SearchSuccess
			result.Hits = hits
			result.Raw = raw
		}
	}
	if err != nil {
		result.Status = entity.SearchFailure
		result.Err = err
		s.logger.Warn("Browser search failed", zap.String("query", query), zap.Int("attempts", attempts), zap.Error(err))
	}

	metrics.SearchDuration.WithLabelValues(backendLabel).Observe(time.Since(start).Seconds())
	metrics.SearchCallsTotal.WithLabelValues(backendLabel, string(result.Status), string(repository.KindOf(err))).Inc()
	return result
}

func (s *ChromedpSearcher) load(ctx context.Context, query string) (string, int, error) {
	target, err := searchURL(s.opts.EngineURL, query)
	if err != nil {
		return "", 0, searchError(query, repository.KindClient, 0, err)
	}

	a, err := s.checkout(ctx)
	if err != nil {
		return "", 0, searchError(query, repository.KindCanceled, 0, err)
	}
	defer s.release(a)

	taskCtx, cancel := chromedp.NewContext(a.ctx, chromedp.WithLogf(s.logger.Sugar().Debugf))
	defer cancel()
	taskCtx, cancel = context.WithTimeout(taskCtx, s.opts.PageLoadTimeout)
	defer cancel()

	// Propagate caller cancellation into the browser tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var status atomic.Int64
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			status.CompareAndSwap(0, e.Response.Status)
		}
	})

	var html string
	err = chromedp.Run(taskCtx,
		network.Enable(),
		chromedp.Navigate(target),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	code := int(status.Load())
	if err != nil {
		if ctx.Err() != nil {
			return "", code, searchError(query, repository.KindCanceled, code, ctx.Err())
		}
		return "", code, retry.Retryable(searchError(query, repository.KindTransient, code, err), 0)
	}
	if cerr := classify(query, code); cerr != nil {
		return "", code, cerr
	}
	return html, code, nil
}

// classify turns a document status into a search error, or nil when the
// page loaded.
func classify(query string, code int) error {
	if code == 0 {
		return nil
	}
	kind := repository.KindForStatus(code)
	if kind == "" {
		return nil
	}
	err := searchError(query, kind, code, nil)
	if kind.Retryable() {
		return retry.Retryable(err, 0)
	}
	return err
}

func searchURL(engine, query string) (string, error) {
	u, err := url.Parse(engine)
	if err != nil {
		return "", fmt.Errorf("engine url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func searchError(query string, kind repository.ErrorKind, code int, err error) error {
	return &repository.SearchError{Query: query, UpstreamError: repository.UpstreamError{
		Kind: kind, StatusCode: code, Err: err,
	}}
}
