package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
	"github.com/user/enrich-service/pkg/retry"
)

type fakeModels struct {
	replies []string
	errs    []error
	calls   int
	prompt  string
	model   string
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	i := f.calls
	f.calls++
	f.model = model
	f.prompt = contents[0].Parts[0].Text
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	text := ""
	if i < len(f.replies) {
		text = f.replies[i]
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}}},
	}, nil
}

func testOptions() Options {
	return Options{Retry: retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}}
}

var (
	searched = entity.SearchResult{Status: entity.SearchSuccess, Raw: "Widget costs $12 and ships today."}
	spec     = entity.ExtractionSpec{Fields: []entity.FieldSpec{
		{Name: "price", Description: "retail price"},
		{Name: "availability"},
		{Name: "warranty"},
	}}
)

func TestNewExtractor_RequiresKey(t *testing.T) {
	_, err := NewExtractor(context.Background(), Options{}, zap.NewNop())
	assert.ErrorIs(t, err, repository.ErrMissingAPIKey)
}

func TestExtract_ParsesJSONReply(t *testing.T) {
	models := &fakeModels{replies: []string{`{"price": "$12", "availability": "ships today", "warranty": null}`}}
	e := newExtractor(models, testOptions(), zap.NewNop())

	got, err := e.Extract(context.Background(), searched, spec)

	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", models.model)
	assert.Contains(t, models.prompt, "- price: retail price")
	assert.Contains(t, models.prompt, searched.Raw)
	assert.Equal(t, "$12", *got["price"])
	assert.Equal(t, "ships today", *got["availability"])
	assert.Nil(t, got["warranty"])
}

func TestExtract_RetriesRateLimit(t *testing.T) {
	models := &fakeModels{
		errs:    []error{genai.APIError{Code: 429, Message: "quota"}},
		replies: []string{"", `{"price": "$12"}`},
	}
	e := newExtractor(models, testOptions(), zap.NewNop())

	got, err := e.Extract(context.Background(), searched, spec)

	require.NoError(t, err)
	assert.Equal(t, 2, models.calls)
	assert.Equal(t, "$12", *got["price"])
}

func TestExtract_AuthFailureIsNotRetried(t *testing.T) {
	models := &fakeModels{errs: []error{&genai.APIError{Code: 403, Message: "API key not valid"}}}
	e := newExtractor(models, testOptions(), zap.NewNop())

	_, err := e.Extract(context.Background(), searched, spec)

	assert.ErrorIs(t, err, repository.ErrAuth)
	assert.Equal(t, 1, models.calls)
}

func TestExtract_TransportErrorExhaustsAttempts(t *testing.T) {
	boom := errors.New("connection reset")
	models := &fakeModels{errs: []error{boom, boom}}
	e := newExtractor(models, testOptions(), zap.NewNop())

	_, err := e.Extract(context.Background(), searched, spec)

	assert.ErrorIs(t, err, repository.ErrTransient)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, models.calls)
}

func TestExtract_EmptyReplyIsMalformed(t *testing.T) {
	models := &fakeModels{replies: []string{"  "}}
	e := newExtractor(models, testOptions(), zap.NewNop())

	_, err := e.Extract(context.Background(), searched, spec)

	assert.ErrorIs(t, err, repository.ErrMalformed)
	assert.Equal(t, 1, models.calls)
}

func TestExtract_NoContextSkipsModel(t *testing.T) {
	models := &fakeModels{}
	e := newExtractor(models, testOptions(), zap.NewNop())

	got, err := e.Extract(context.Background(), entity.SearchResult{Status: entity.SearchSuccess}, spec)

	require.NoError(t, err)
	assert.Zero(t, models.calls)
	assert.Len(t, got, 3)
}
