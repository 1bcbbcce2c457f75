// radiowatch - Surveillance and tracking device detection for radio observations.
// Copyright (c) 2025 radiowatch authors
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/radiowatch/radiowatch/internal/api"
	"github.com/radiowatch/radiowatch/internal/bus"
	"github.com/radiowatch/radiowatch/internal/cache"
	"github.com/radiowatch/radiowatch/internal/config"
	"github.com/radiowatch/radiowatch/internal/decision"
	"github.com/radiowatch/radiowatch/internal/features"
	"github.com/radiowatch/radiowatch/internal/logging"
	"github.com/radiowatch/radiowatch/internal/repository"
	"github.com/radiowatch/radiowatch/internal/rules"
	"github.com/radiowatch/radiowatch/internal/scoring"
	"github.com/radiowatch/radiowatch/internal/tracing"
	"github.com/radiowatch/radiowatch/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("radiowatch exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Setup(cfg.Logging, os.Stdout)

	slog.Info("starting radiowatch",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"scoring_interval", cfg.Scoring.Interval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Scoring pipeline
	scorer, err := rules.NewScorer(cfg.Rules.Weights)
	if err != nil {
		return fmt.Errorf("initialize rule scorer: %w", err)
	}
	policy, err := rules.NewCandidatePolicy(cfg.Rules.CandidatePolicy)
	if err != nil {
		return fmt.Errorf("compile candidate policy: %w", err)
	}
	svc := scoring.NewService(repo, cacheImpl, busImpl,
		features.NewExtractor(cfg.Features),
		decision.NewProcessor(scorer, policy),
		scoring.Options{
			BatchSize: cfg.Scoring.BatchSize,
			Workers:   cfg.Scoring.Workers,
			ModelType: cfg.Scoring.ModelType,
			ScoreTTL:  cfg.Cache.ScoreTTL,
		},
	)
	slog.Info("scoring service initialized",
		"batch_size", cfg.Scoring.BatchSize,
		"workers", cfg.Scoring.Workers,
		"candidate_policy", policy.Expression(),
	)

	// Bus-driven and scheduled recomputes
	recomputeWorker := worker.NewWorker(busImpl, svc, worker.Config{Interval: cfg.Scoring.Interval})
	if err := recomputeWorker.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, svc, Version)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	slog.Info("radiowatch is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case err := <-serverErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := recomputeWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	slog.Info("radiowatch shutdown complete")
	return runErr
}
