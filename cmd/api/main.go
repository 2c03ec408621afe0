package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"legalrag/internal/app"
	"legalrag/internal/config"
	"legalrag/internal/contextutil"
	"legalrag/internal/http"
	"legalrag/internal/indexer"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API segments legal documents into articles and retrieves the articles relevant to a question.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Legal Retrieval API
//   description: |
//     Article-aware retrieval over a library of legal documents.
//     Documents are split into articles, indexed as small fragments, and returned whole.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("Failed to close resources", "error", err)
		}
	}()
	slog.Info("Index ready", "backend", cfg.VectorBackend, "collection", cfg.VectorCollection, "vector_size", cfg.VectorSize)

	router := http.NewRouter(&http.Deps{
		Retriever: a.Retriever,
		Counter:   a.Retriever,
		Ingester:  a.Pipeline,
		Indexer:   a.Pipeline,
		SourceDir: cfg.SourceDir,
	})

	// Ingest the source directory in the background once the router is ready.
	// The run holds the same guard as POST /api/index.
	indexCtx := contextutil.WithLogger(ctx, logger)
	slog.Info("Starting background ingestion", "source_dir", cfg.SourceDir, "skip_unchanged", cfg.SkipUnchanged)
	err = a.Pipeline.StartIngestAll(indexCtx, cfg.SourceDir, func(stats *indexer.Stats, err error) {
		if err != nil {
			slog.Error("Ingestion completed with errors", "error", err)
			return
		}
		slog.Info("Ingestion completed successfully", "units", stats.UnitsIndexed)
	})
	if err != nil {
		slog.Error("Failed to start ingestion", "error", err)
	}

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			slog.Error("API server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}
}
