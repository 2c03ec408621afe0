package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"legalrag/internal/app"
	"legalrag/internal/cli"
	"legalrag/internal/config"
	"legalrag/internal/contextutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, load); err != nil {
		stop()
		os.Exit(1)
	}
}

// load builds the services from the environment. Logs go to stderr so
// command output stays clean.
func load(ctx context.Context, opts cli.LoadOptions) (*cli.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.SkipUnchanged {
		cfg.SkipUnchanged = true
	}

	logger := app.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	ctx = contextutil.WithLogger(ctx, logger)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &cli.Services{
		Retriever: a.Retriever,
		Ingester:  a.Pipeline,
		Sources:   a.Sources,
		SourceDir: cfg.SourceDir,
		Close:     a.Close,
	}, nil
}
