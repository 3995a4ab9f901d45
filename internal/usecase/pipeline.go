package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
	"github.com/user/enrich-service/internal/template"
	"github.com/user/enrich-service/pkg/metrics"
)

var ErrInvalidSpec = errors.New("invalid extraction spec")

const defaultWorkers = 4

type PipelineConfig struct {
	Workers  int
	CacheTTL time.Duration
}

// Pipeline renders, searches, extracts and assembles every row of a table.
// One Pipeline serves any number of concurrent runs; the in-flight
// semaphore is shared by all of them.
type Pipeline struct {
	searcher  repository.Searcher
	extractor repository.Extractor
	cache     repository.SearchCacheRepository
	inflight  *semaphore.Weighted
	cfg       PipelineConfig
	logger    *zap.Logger
}

// NewPipeline wires a pipeline. cache and inflight may be nil.
func NewPipeline(
	searcher repository.Searcher,
	extractor repository.Extractor,
	cache repository.SearchCacheRepository,
	inflight *semaphore.Weighted,
	cfg PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Pipeline{
		searcher:  searcher,
		extractor: extractor,
		cache:     cache,
		inflight:  inflight,
		cfg:       cfg,
		logger:    logger,
	}
}

type Request struct {
	Table    *entity.Table
	Template *template.Template
	Spec     entity.ExtractionSpec
	// OnRow, if set, is called once per finished row from a single
	// goroutine, in completion order.
	OnRow func(entity.OutputRow)
}

type Result struct {
	Columns  []string
	Rows     []entity.OutputRow
	Failed   int
	Canceled bool
}

// ValidateSpec rejects specs that cannot be extracted: no fields, empty or
// duplicate names (compared case-insensitively) and invalid patterns.
func ValidateSpec(spec entity.ExtractionSpec) error {
	if len(spec.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidSpec)
	}
	seen := make(map[string]bool, len(spec.Fields))
	for i, f := range spec.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidSpec, i)
		}
		if name != f.Name {
			return fmt.Errorf("%w: field name %q has surrounding spaces", ErrInvalidSpec, f.Name)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidSpec, f.Name)
		}
		seen[key] = true
		if f.Pattern != "" {
			if _, err := regexp.Compile(f.Pattern); err != nil {
				return fmt.Errorf("%w: field %q pattern: %v", ErrInvalidSpec, f.Name, err)
			}
		}
	}
	return nil
}

type rowTask struct {
	pos int
	row entity.Row
}

type rowDone struct {
	pos int
	row entity.OutputRow
	err error
}

// runState is shared by the workers of one run.
type runState struct {
	req   Request
	names map[string]string
	group singleflight.Group
}

// Run processes every row of req.Table. The template and spec are checked
// before any row is dispatched; a failure there is returned and no API call
// is made. Per-row failures never abort the run: they are recorded on the
// row, which still appears in the result. A cancelled ctx stops dispatch
// and the remaining rows are returned with outcome canceled.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Table == nil || req.Template == nil {
		return nil, errors.New("pipeline: table and template are required")
	}
	if err := req.Template.Validate(req.Table.Columns); err != nil {
		return nil, err
	}
	if err := ValidateSpec(req.Spec); err != nil {
		return nil, err
	}

	columns, names := OutputColumns(req.Table.Columns, req.Spec)
	state := &runState{req: req, names: names}

	n := req.Table.Len()
	res := &Result{Columns: columns, Rows: make([]entity.OutputRow, n)}
	filled := make([]bool, n)

	workers := p.cfg.Workers
	if workers > n {
		workers = n
	}

	tasks := make(chan rowTask)
	results := make(chan rowDone, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				out, err := p.processRow(ctx, state, t.row)
				results <- rowDone{pos: t.pos, row: out, err: err}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for i, row := range req.Table.Rows {
			select {
			case <-ctx.Done():
				return
			case tasks <- rowTask{pos: i, row: row}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var contractErr error
	record := func(pos int, out entity.OutputRow) {
		res.Rows[pos] = out
		filled[pos] = true
		if out.Outcome != entity.OutcomeOK {
			res.Failed++
		}
		metrics.RowsTotal.WithLabelValues(string(out.Outcome)).Inc()
		if req.OnRow != nil {
			req.OnRow(out)
		}
	}

	for d := range results {
		if d.err != nil && contractErr == nil {
			contractErr = d.err
		}
		record(d.pos, d.row)
	}

	for pos, ok := range filled {
		if !ok {
			record(pos, canceledRow(req.Table.Rows[pos], req.Spec, names))
		}
	}
	res.Canceled = ctx.Err() != nil

	if contractErr != nil {
		return res, contractErr
	}
	return res, nil
}

// canceledRow is the output of a row never dispatched.
func canceledRow(row entity.Row, spec entity.ExtractionSpec, names map[string]string) entity.OutputRow {
	return entity.OutputRow{
		Index:   row.Index,
		Values:  Assemble(row, entity.NullFields(spec), names),
		State:   entity.RowAssembled,
		Outcome: entity.OutcomeCanceled,
		Error:   repository.ErrCanceled.Error(),
	}
}

func (p *Pipeline) processRow(ctx context.Context, state *runState, row entity.Row) (entity.OutputRow, error) {
	spec := state.req.Spec
	prog := newRowProgress(row.Index)
	logger := p.logger.With(zap.Int("row", row.Index))

	finish := func(fields entity.ExtractedFields, outcome entity.RowOutcome, detail string) (entity.OutputRow, error) {
		if err := prog.advance(entity.RowAssembled); err != nil {
			return prog.row, err
		}
		prog.row.Values = Assemble(row, fields, state.names)
		prog.row.Outcome = outcome
		prog.row.Error = detail
		if outcome != entity.OutcomeOK {
			logger.Warn("Row degraded", zap.String("outcome", string(outcome)), zap.String("query", prog.row.Query), zap.String("error", detail))
		}
		return prog.row, nil
	}

	if ctx.Err() != nil {
		return finish(entity.NullFields(spec), entity.OutcomeCanceled, repository.ErrCanceled.Error())
	}

	query, err := state.req.Template.Render(row)
	if err != nil {
		return finish(entity.NullFields(spec), entity.OutcomeRenderFailed, err.Error())
	}
	if err := prog.advance(entity.RowRendered); err != nil {
		return prog.row, err
	}
	prog.row.Query = query

	result := p.search(ctx, state, query)
	if err := prog.advance(entity.RowSearched); err != nil {
		return prog.row, err
	}

	fields := entity.NullFields(spec)
	outcome := entity.OutcomeOK
	detail := ""
	if result.Failed() {
		// No model call for a failed search.
		outcome = entity.OutcomeSearchFailed
		if errors.Is(result.Err, repository.ErrCanceled) {
			outcome = entity.OutcomeCanceled
		}
		detail = result.ErrorDetail()
	} else {
		extracted, err := p.extract(ctx, result, spec)
		if err != nil {
			outcome = entity.OutcomeExtractFailed
			if errors.Is(err, repository.ErrCanceled) {
				outcome = entity.OutcomeCanceled
			}
			detail = err.Error()
		} else {
			for _, f := range spec.Fields {
				fields[f.Name] = extracted[f.Name]
			}
		}
	}
	if err := prog.advance(entity.RowExtracted); err != nil {
		return prog.row, err
	}
	return finish(fields, outcome, detail)
}

func (p *Pipeline) acquire(ctx context.Context) (func(), error) {
	if p.inflight == nil {
		return func() {}, nil
	}
	if err := p.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { p.inflight.Release(1) }, nil
}

// search consults the cache, then the searcher. Identical queries of one
// run share a single call.
func (p *Pipeline) search(ctx context.Context, state *runState, query string) entity.SearchResult {
	if p.cache != nil {
		cached, ok, err := p.cache.Get(ctx, query)
		switch {
		case err != nil:
			metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
			p.logger.Debug("Search cache lookup failed", zap.String("query", query), zap.Error(err))
		case ok:
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			return *cached
		default:
			metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	v, _, _ := state.group.Do(query, func() (interface{}, error) {
		release, err := p.acquire(ctx)
		if err != nil {
			return entity.SearchResult{Query: query, Status: entity.SearchFailure, Err: &repository.SearchError{
				Query: query, UpstreamError: repository.UpstreamError{Kind: repository.KindCanceled, Err: err},
			}}, nil
		}
		defer release()

		result := p.searcher.Search(ctx, query)
		if !result.Failed() && p.cache != nil && p.cfg.CacheTTL > 0 {
			if err := p.cache.Put(ctx, result, p.cfg.CacheTTL); err != nil {
				p.logger.Debug("Search cache store failed", zap.String("query", query), zap.Error(err))
			}
		}
		return result, nil
	})
	return v.(entity.SearchResult)
}

func (p *Pipeline) extract(ctx context.Context, result entity.SearchResult, spec entity.ExtractionSpec) (entity.ExtractedFields, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, &repository.ExtractionError{UpstreamError: repository.UpstreamError{Kind: repository.KindCanceled, Err: err}}
	}
	defer release()

	fields, err := p.extractor.Extract(ctx, result, spec)
	if err != nil {
		var ee *repository.ExtractionError
		if !errors.As(err, &ee) {
			err = &repository.ExtractionError{UpstreamError: repository.UpstreamError{Kind: repository.KindMalformed, Err: err}}
		}
		return nil, err
	}
	return fields, nil
}
