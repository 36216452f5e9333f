// Package main provides the entry point for the ClipForge segment worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/clipforge/clipforge-api/internal/bootstrap"
	"github.com/clipforge/clipforge-api/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting ClipForge worker",
		slog.Int("concurrency", cfg.WorkerConcurrency),
		slog.String("scratch_dir", cfg.ScratchDir),
		slog.Duration("segment_timeout", cfg.SegmentTimeout()),
		slog.Bool("low_resource_mode", cfg.LowResourceMode),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.Bool("redis_enabled", cfg.RedisEnabled()),
	)

	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("dependency shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// Run until interrupted; Run drains in-flight jobs before returning.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps.Worker.Run(ctx)

	logger.Info("worker stopped gracefully")
	return nil
}
