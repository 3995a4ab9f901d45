// Package gemini extracts fields with a generative Gemini model.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/user/enrich-service/internal/adapter/prompt"
	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
	"github.com/user/enrich-service/pkg/metrics"
	"github.com/user/enrich-service/pkg/retry"
)

const providerLabel = "gemini"

// generator is the part of genai.Models the extractor uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Retry   retry.Policy
}

type Extractor struct {
	models generator
	opts   Options
	logger *zap.Logger
}

var _ repository.Extractor = (*Extractor)(nil)

func NewExtractor(ctx context.Context, opts Options, logger *zap.Logger) (*Extractor, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, repository.ErrMissingAPIKey
	}
	cc := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newExtractor(client.Models, opts, logger), nil
}

func newExtractor(models generator, opts Options, logger *zap.Logger) *Extractor {
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Extractor{models: models, opts: opts, logger: logger}
}

// Extract sends one prompt per row and parses the fields from the reply.
func (e *Extractor) Extract(ctx context.Context, result entity.SearchResult, spec entity.ExtractionSpec) (entity.ExtractedFields, error) {
	if strings.TrimSpace(result.Raw) == "" {
		return entity.NullFields(spec), nil
	}

	contents := genai.Text(prompt.Build(spec, result.Raw))
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}

	start := time.Now()
	var text string
	_, err := retry.Do(ctx, e.opts.Retry, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			metrics.RetriesTotal.WithLabelValues("extraction").Inc()
		}
		callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()

		resp, err := e.models.GenerateContent(callCtx, e.opts.Model, contents, config)
		if err != nil {
			return classify(ctx, err)
		}
		text = resp.Text()
		if strings.TrimSpace(text) == "" {
			return &repository.ExtractionError{UpstreamError: repository.UpstreamError{
				Kind: repository.KindMalformed, Message: "empty response",
			}}
		}
		return nil
	})
	metrics.ExtractionDuration.WithLabelValues(providerLabel).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ExtractionCallsTotal.WithLabelValues(providerLabel, "failure", string(repository.KindOf(err))).Inc()
		e.logger.Debug("Gemini call failed", zap.String("model", e.opts.Model), zap.Error(err))
		return nil, err
	}
	metrics.ExtractionCallsTotal.WithLabelValues(providerLabel, "success", "").Inc()
	return prompt.Parse(text, spec), nil
}

// classify maps a genai error onto the upstream taxonomy, marking the
// retryable ones.
func classify(ctx context.Context, err error) error {
	fail := func(kind repository.ErrorKind, code int, msg string, err error) error {
		return &repository.ExtractionError{UpstreamError: repository.UpstreamError{
			Kind: kind, StatusCode: code, Message: msg, Err: err,
		}}
	}

	if ctx.Err() != nil {
		return fail(repository.KindCanceled, 0, "", ctx.Err())
	}

	code, msg, ok := apiStatus(err)
	if !ok {
		// Deadline of the single call or a transport failure.
		return retry.Retryable(fail(repository.KindTransient, 0, "", err), 0)
	}
	kind := repository.KindForStatus(code)
	if kind == "" {
		kind = repository.KindMalformed
	}
	ferr := fail(kind, code, msg, nil)
	if kind.Retryable() {
		return retry.Retryable(ferr, 0)
	}
	return ferr
}

func apiStatus(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Message, true
	}
	return 0, "", false
}
