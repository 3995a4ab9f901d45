// Package huggingface extracts fields with an extractive question-answering
// model served by the Hugging Face inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/enrich-service/internal/adapter/prompt"
	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
	"github.com/user/enrich-service/pkg/metrics"
	"github.com/user/enrich-service/pkg/retry"
)

const (
	providerLabel = "huggingface"
	maxErrorBody  = 512
)

type Options struct {
	Token   string
	BaseURL string
	Model   string
	Timeout time.Duration
	// MinScore drops answers the model is less confident about.
	MinScore float64
	Retry    retry.Policy
}

type Extractor struct {
	opts   Options
	client *http.Client
	logger *zap.Logger
}

var _ repository.Extractor = (*Extractor)(nil)

func NewExtractor(opts Options, logger *zap.Logger) (*Extractor, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, repository.ErrMissingAPIKey
	}
	if opts.BaseURL == "" || opts.Model == "" {
		return nil, errors.New("huggingface: base url and model are required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Extractor{opts: opts, client: &http.Client{}, logger: logger}, nil
}

type qaInputs struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

type qaRequest struct {
	Inputs qaInputs `json:"inputs"`
}

type qaAnswer struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
}

type apiError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// Extract asks one question per field against the search text.
func (e *Extractor) Extract(ctx context.Context, result entity.SearchResult, spec entity.ExtractionSpec) (entity.ExtractedFields, error) {
	fields := entity.NullFields(spec)
	if strings.TrimSpace(result.Raw) == "" {
		return fields, nil
	}

	start := time.Now()
	var err error
	for _, f := range spec.Fields {
		var answer *string
		answer, err = e.answer(ctx, prompt.Question(f), result.Raw)
		if err != nil {
			var ee *repository.ExtractionError
			if errors.As(err, &ee) {
				ee.Field = f.Name
			}
			break
		}
		fields[f.Name] = prompt.Match(answer, f.Pattern)
	}

	metrics.ExtractionDuration.WithLabelValues(providerLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExtractionCallsTotal.WithLabelValues(providerLabel, "failure", string(repository.KindOf(err))).Inc()
		return nil, err
	}
	metrics.ExtractionCallsTotal.WithLabelValues(providerLabel, "success", "").Inc()
	return fields, nil
}

func (e *Extractor) answer(ctx context.Context, question, passage string) (*string, error) {
	body, err := json.Marshal(qaRequest{Inputs: qaInputs{Question: question, Context: passage}})
	if err != nil {
		return nil, err
	}

	var answer *string
	_, err = retry.Do(ctx, e.opts.Retry, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			metrics.RetriesTotal.WithLabelValues("extraction").Inc()
			e.logger.Debug("Retrying extraction", zap.String("question", question), zap.Int("attempt", attempt))
		}
		a, err := e.call(ctx, body)
		if err != nil {
			return err
		}
		answer = a
		return nil
	})
	return answer, err
}

func (e *Extractor) call(ctx context.Context, body []byte) (*string, error) {
	fail := func(kind repository.ErrorKind, code int, msg string, err error) error {
		return &repository.ExtractionError{UpstreamError: repository.UpstreamError{
			Kind: kind, StatusCode: code, Message: msg, Err: err,
		}}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(e.opts.BaseURL, "/") + "/" + e.opts.Model
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fail(repository.KindClient, 0, "", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.opts.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fail(repository.KindCanceled, 0, "", ctx.Err())
		}
		return nil, retry.Retryable(fail(repository.KindTransient, 0, "", err), 0)
	}
	defer resp.Body.Close()

	if kind := repository.KindForStatus(resp.StatusCode); kind != "" {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr apiError
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		ferr := fail(kind, resp.StatusCode, msg, nil)
		if kind.Retryable() {
			// A loading model reports how long it needs.
			return nil, retry.Retryable(ferr, time.Duration(apiErr.EstimatedTime*float64(time.Second)))
		}
		return nil, ferr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Retryable(fail(repository.KindTransient, resp.StatusCode, "read body", err), 0)
	}
	a, err := decodeAnswer(raw)
	if err != nil {
		return nil, fail(repository.KindMalformed, resp.StatusCode, "", err)
	}
	if strings.TrimSpace(a.Answer) == "" || a.Score < e.opts.MinScore {
		return nil, nil
	}
	s := strings.TrimSpace(a.Answer)
	return &s, nil
}

// decodeAnswer accepts a single answer object or a ranked list of them.
func decodeAnswer(raw []byte) (qaAnswer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []qaAnswer
		if err := json.Unmarshal(raw, &list); err != nil {
			return qaAnswer{}, fmt.Errorf("decode answers: %w", err)
		}
		if len(list) == 0 {
			return qaAnswer{}, nil
		}
		return list[0], nil
	}
	var a qaAnswer
	if err := json.Unmarshal(raw, &a); err != nil {
		return qaAnswer{}, fmt.Errorf("decode answer: %w", err)
	}
	return a, nil
}
