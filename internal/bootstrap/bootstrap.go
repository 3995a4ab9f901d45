// Package bootstrap builds the enrichment pipeline and its backing services
// from configuration. It is shared by the API server and the CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/user/enrich-service/internal/adapter/chromedp_search"
	"github.com/user/enrich-service/internal/adapter/gemini"
	"github.com/user/enrich-service/internal/adapter/huggingface"
	"github.com/user/enrich-service/internal/adapter/memory"
	"github.com/user/enrich-service/internal/adapter/postgres"
	redis_adapter "github.com/user/enrich-service/internal/adapter/redis"
	"github.com/user/enrich-service/internal/adapter/scraperapi"
	"github.com/user/enrich-service/internal/adapter/serp"
	"github.com/user/enrich-service/internal/adapter/sheets"
	"github.com/user/enrich-service/internal/delivery/http/handler"
	"github.com/user/enrich-service/internal/repository"
	"github.com/user/enrich-service/internal/usecase"
	"github.com/user/enrich-service/pkg/config"
	"github.com/user/enrich-service/pkg/retry"
)

// App holds the wired components. Close releases every connection it opened.
type App struct {
	Pipeline *usecase.Pipeline
	Datasets *usecase.DatasetManager
	Runs     *usecase.RunManager
	Health   map[string]handler.Pinger
	// Sheets is nil unless SHEETS_CREDENTIALS_FILE is set.
	Sheets usecase.SheetWriter

	closers []func()
}

// Close releases resources in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Options selects which optional backing services to connect. Each one is
// used only when its address is configured.
type Options struct {
	// Cache enables the Redis search cache.
	Cache bool
	// Persistence stores runs in Postgres instead of memory.
	Persistence bool
}

// New wires the application. cfg must already be validated.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (*App, error) {
	app := &App{Health: make(map[string]handler.Pinger)}

	searcher, err := newSearcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := searcher.(interface{ Close() }); ok {
		app.closers = append(app.closers, c.Close)
	}

	extractor, err := newExtractor(ctx, cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	var cache repository.SearchCacheRepository
	var runRepo repository.RunRepository = memory.NewRunRepo()

	if opts.Cache && cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			_ = rdb.Close()
			app.Close()
			return nil, fmt.Errorf("unable to connect to redis: %w", err)
		}
		app.closers = append(app.closers, func() { _ = rdb.Close() })
		searchCache := redis_adapter.NewSearchCache(rdb)
		cache = searchCache
		app.Health["redis"] = searchCache
		logger.Info("Redis connection established", zap.String("addr", cfg.RedisAddr))
	}

	if opts.Persistence && cfg.PostgresURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("unable to create postgres pool: %w", err)
		}
		app.closers = append(app.closers, dbpool.Close)
		pgRuns := postgres.NewRunRepo(dbpool)
		if err := pgRuns.Ping(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("unable to connect to postgres: %w", err)
		}
		if err := pgRuns.EnsureSchema(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("unable to create schema: %w", err)
		}
		runRepo = pgRuns
		app.Health["postgres"] = pgRuns
		logger.Info("PostgreSQL connection pool established")
	}

	var inflight *semaphore.Weighted
	if cfg.MaxInflight > 0 {
		inflight = semaphore.NewWeighted(int64(cfg.MaxInflight))
	}

	app.Pipeline = usecase.NewPipeline(searcher, extractor, cache, inflight, usecase.PipelineConfig{
		Workers:  cfg.Workers,
		CacheTTL: cfg.CacheTTL(),
	}, logger)

	if cfg.SheetsCredentialsFile != "" {
		writer, err := sheets.NewWriter(ctx, cfg.SheetsCredentialsFile, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Sheets = writer
		logger.Info("Google Sheets write-back enabled")
	}

	datasetRepo := memory.NewDatasetRepo()
	app.Datasets = usecase.NewDatasetManager(datasetRepo, sheets.NewImporter(cfg.SearchTimeoutDuration()), logger)
	app.Runs = usecase.NewRunManager(app.Pipeline, datasetRepo, runRepo, app.Sheets, logger)
	return app, nil
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff(),
		MaxBackoff:     cfg.MaxBackoff(),
		Jitter:         retry.DefaultJitter,
	}
}

func newSearcher(cfg *config.Config, logger *zap.Logger) (repository.Searcher, error) {
	parse := serp.Options{
		Limit:           cfg.SearchResultLimit,
		Keyword:         cfg.SearchSnippetKeyword,
		MaxContextChars: cfg.MaxContextChars,
	}
	switch cfg.SearchBackend {
	case config.BackendBrowser:
		logger.Info("Using headless browser search backend")
		return chromedp_search.NewChromedpSearcher(chromedp_search.Options{
			EngineURL:       cfg.SearchEngineURL,
			PageLoadTimeout: cfg.PageLoadTimeoutDuration(),
			MaxConcurrency:  cfg.Workers,
			Retry:           retryPolicy(cfg),
			Parse:           parse,
		}, logger), nil
	case config.BackendHTTP:
		return scraperapi.NewSearcher(scraperapi.Options{
			APIKey:    cfg.SearchAPIKey,
			BaseURL:   cfg.SearchBaseURL,
			EngineURL: cfg.SearchEngineURL,
			Timeout:   cfg.SearchTimeoutDuration(),
			RPS:       cfg.SearchRPS,
			Retry:     retryPolicy(cfg),
			Parse:     parse,
		}, logger)
	default:
		return nil, &config.ConfigError{Key: "SEARCH_BACKEND", Reason: fmt.Sprintf("unknown backend %q", cfg.SearchBackend)}
	}
}

func newExtractor(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Extractor, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return gemini.NewExtractor(ctx, gemini.Options{
			APIKey:  cfg.LLMAPIToken,
			Model:   cfg.LLMModel,
			BaseURL: cfg.LLMBaseURL,
			Timeout: cfg.LLMTimeoutDuration(),
			Retry:   retryPolicy(cfg),
		}, logger)
	case config.ProviderHuggingFace:
		return huggingface.NewExtractor(huggingface.Options{
			Token:    cfg.LLMAPIToken,
			BaseURL:  cfg.LLMBaseURL,
			Model:    cfg.LLMModel,
			Timeout:  cfg.LLMTimeoutDuration(),
			MinScore: cfg.LLMMinScore,
			Retry:    retryPolicy(cfg),
		}, logger)
	default:
		return nil, &config.ConfigError{Key: "LLM_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", cfg.LLMProvider)}
	}
}
