package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/enrich-service/internal/bootstrap"
	"github.com/user/enrich-service/internal/delivery/http/handler"
	"github.com/user/enrich-service/internal/delivery/http/router"
	"github.com/user/enrich-service/pkg/config"
	"github.com/user/enrich-service/pkg/logger"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Logger initialized", zap.String("level", cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	// --- Pipeline and storage ---
	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Cache: true, Persistence: true}, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer app.Close()

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(app.Datasets, app.Runs, app.Health, log)
	httpRouter := router.New(apiHandler, log)

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     httpRouter,
		ReadTimeout: 30 * time.Second,
		// Exports of large runs stream for a while.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Could not listen on port", zap.String("port", cfg.ServerPort), zap.Error(err))
		}
	}()
	log.Info("Server started",
		zap.String("port", cfg.ServerPort),
		zap.String("search_backend", cfg.SearchBackend),
		zap.String("llm_provider", cfg.LLMProvider),
	)

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := app.Runs.Shutdown(shutdownCtx); err != nil {
		log.Error("Runs did not finish before shutdown", zap.Error(err))
	}

	log.Info("Server exiting")
}
