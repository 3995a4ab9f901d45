// Package scraperapi implements the search backend on top of a proxy style
// scraping API that fetches a search engine results page for a query.
package scraperapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/user/enrich-service/internal/adapter/serp"
	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
	"github.com/user/enrich-service/pkg/metrics"
	"github.com/user/enrich-service/pkg/retry"
	"github.com/user/enrich-service/pkg/utils"
)

const (
	backendLabel = "http"
	maxBodyBytes = 5 << 20
	maxErrorBody = 512
)

type Options struct {
	APIKey    string
	BaseURL   string
	EngineURL string
	Timeout   time.Duration
	// RPS limits outgoing requests per second, 0 disables the limit.
	RPS   float64
	Retry retry.Policy
	Parse serp.Options
}

type Searcher struct {
	opts    Options
	client  *http.Client
	limiter *rate.Limiter
	agents  *utils.UserAgents
	logger  *zap.Logger
}

var _ repository.Searcher = (*Searcher)(nil)

// NewSearcher returns an HTTP searcher. An empty API key is a configuration
// error and fails here, before any row is processed.
func NewSearcher(opts Options, logger *zap.Logger) (*Searcher, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, repository.ErrMissingAPIKey
	}
	if opts.BaseURL == "" {
		return nil, errors.New("scraperapi: base url is required")
	}
	if opts.EngineURL == "" {
		opts.EngineURL = "https://www.google.com/search"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Parse.BaseURL == "" {
		opts.Parse.BaseURL = opts.EngineURL
	}

	var limiter *rate.Limiter
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}

	return &Searcher{
		opts:    opts,
		client:  &http.Client{},
		limiter: limiter,
		agents:  utils.NewUserAgents(time.Now().UnixNano()),
		logger:  logger,
	}, nil
}

// Search fetches and parses the results page for query. Failures are
// reported on the returned result, never as a panic or a Go error.
func (s *Searcher) Search(ctx context.Context, query string) entity.SearchResult {
	start := time.Now()
	result := entity.SearchResult{Query: query}

	var page string
	attempts, err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			metrics.RetriesTotal.WithLabelValues("search").Inc()
			s.logger.Debug("Retrying search", zap.String("query", query), zap.Int("attempt", attempt))
		}
		body, err := s.fetch(ctx, query)
		if err != nil {
			return err
		}
		page = body
		return nil
	})
	result.Attempts = attempts

	if err == nil {
		hits, raw, perr := serp.Parse(page, s.opts.Parse)
		if perr != nil {
			err = &repository.SearchError{Query: query, UpstreamError: repository.UpstreamError{
				Kind: repository.KindMalformed, StatusCode: http.StatusOK, Err: perr,
			}}
		} else {
			result.Status = entity.SearchSuccess
			result.StatusCode = http.StatusOK
			result.Hits = hits
			result.Raw = raw
		}
	}

	if err != nil {
		if ctx.Err() != nil && repository.KindOf(err) != repository.KindCanceled {
			err = &repository.SearchError{Query: query, UpstreamError: repository.UpstreamError{
				Kind: repository.KindCanceled, Err: ctx.Err(),
			}}
		}
		result.Status = entity.SearchFailure
		result.Err = err
		var se *repository.SearchError
		if errors.As(err, &se) {
			result.StatusCode = se.StatusCode
		}
		s.logger.Warn("Search failed",
			zap.String("query", query),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}

	metrics.SearchDuration.WithLabelValues(backendLabel).Observe(time.Since(start).Seconds())
	metrics.SearchCallsTotal.WithLabelValues(backendLabel, string(result.Status), string(repository.KindOf(err))).Inc()
	return result
}

// requestURL builds {base}?api_key=KEY&url={engine}?q=QUERY.
func (s *Searcher) requestURL(query string) (string, error) {
	engine, err := url.Parse(s.opts.EngineURL)
	if err != nil {
		return "", fmt.Errorf("engine url: %w", err)
	}
	eq := engine.Query()
	eq.Set("q", query)
	engine.RawQuery = eq.Encode()

	base, err := url.Parse(s.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("base url: %w", err)
	}
	bq := base.Query()
	bq.Set("api_key", s.opts.APIKey)
	bq.Set("url", engine.String())
	base.RawQuery = bq.Encode()
	return base.String(), nil
}

func (s *Searcher) fetch(ctx context.Context, query string) (string, error) {
	fail := func(kind repository.ErrorKind, code int, msg string, err error) error {
		return &repository.SearchError{Query: query, UpstreamError: repository.UpstreamError{
			Kind: kind, StatusCode: code, Message: msg, Err: err,
		}}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fail(repository.KindCanceled, 0, "", err)
		}
	}

	target, err := s.requestURL(query)
	if err != nil {
		return "", fail(repository.KindClient, 0, "", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target, nil)
	if err != nil {
		return "", fail(repository.KindClient, 0, "", err)
	}
	req.Header.Set("User-Agent", s.agents.Next())

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fail(repository.KindCanceled, 0, "", ctx.Err())
		}
		// Per-call timeouts and connection failures are worth another try.
		return "", retry.Retryable(fail(repository.KindTransient, 0, "", redact(err)), 0)
	}
	defer resp.Body.Close()

	if kind := repository.KindForStatus(resp.StatusCode); kind != "" {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := fail(kind, resp.StatusCode, strings.TrimSpace(string(snippet)), nil)
		if kind.Retryable() {
			return "", retry.Retryable(serr, retryAfter(resp.Header.Get("Retry-After")))
		}
		return "", serr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return "", fail(repository.KindCanceled, resp.StatusCode, "", ctx.Err())
		}
		return "", retry.Retryable(fail(repository.KindTransient, resp.StatusCode, "read body", err), 0)
	}
	return string(body), nil
}

// redact strips the request URL, which carries the API key, from transport
// errors.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
