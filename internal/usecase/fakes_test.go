package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
)

type fakeSearcher struct {
	mu        sync.Mutex
	calls     []string
	failures  map[string]repository.ErrorKind
	onSearch  func(query string)
	delay     time.Duration
	active    int
	maxActive int
}

func (f *fakeSearcher) Search(ctx context.Context, query string) entity.SearchResult {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	kind, fail := f.failures[query]
	hook := f.onSearch
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if hook != nil {
		hook(query)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if fail {
		return entity.SearchResult{Query: query, Status: entity.SearchFailure, Err: &repository.SearchError{
			Query: query, UpstreamError: repository.UpstreamError{Kind: kind, Message: "fake failure"},
		}}
	}
	return entity.SearchResult{Query: query, Status: entity.SearchSuccess, Raw: "context for " + query}
}

func (f *fakeSearcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeExtractor struct {
	mu       sync.Mutex
	contexts []string
	failures map[string]error
}

// Extract returns "<field>:<raw>" for every field.
func (f *fakeExtractor) Extract(ctx context.Context, result entity.SearchResult, spec entity.ExtractionSpec) (entity.ExtractedFields, error) {
	f.mu.Lock()
	f.contexts = append(f.contexts, result.Raw)
	err := f.failures[result.Query]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := entity.ExtractedFields{}
	for _, fs := range spec.Fields {
		out[fs.Name] = entity.StringPtr(fs.Name + ":" + result.Raw)
	}
	return out, nil
}

func (f *fakeExtractor) Contexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.contexts...)
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]entity.SearchResult
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]entity.SearchResult{}}
}

func (c *fakeCache) Get(ctx context.Context, query string) (*entity.SearchResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	r, ok := c.entries[query]
	if !ok {
		return nil, false, nil
	}
	r.Cached = true
	return &r, true, nil
}

func (c *fakeCache) Put(ctx context.Context, result entity.SearchResult, expiry time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[result.Query] = result
	return nil
}

func (c *fakeCache) Ping(context.Context) error { return nil }

var errFakeModel = errors.New("model exploded")

func companies(names ...string) *entity.Table {
	t := &entity.Table{Columns: []string{"company"}}
	for i, n := range names {
		t.Rows = append(t.Rows, entity.Row{Index: i, Values: map[string]any{"company": n}})
	}
	return t
}
