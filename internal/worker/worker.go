// Package worker runs recomputes triggered from the event bus and on a
// schedule.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radiowatch/radiowatch/internal/bus"
	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/scoring"
)

// Recomputer is the part of the scoring service the worker drives.
type Recomputer interface {
	Recompute(ctx context.Context, runID string, networkIDs []string) (*scoring.RunResult, error)
	Invalidate(ctx context.Context, networkID string)
}

// Config holds worker configuration.
type Config struct {
	// Interval schedules a full recompute. Zero disables the schedule.
	Interval time.Duration
}

// Worker listens for tag changes and recompute requests.
//
// A tag change rescores the tagged network. A recompute request rescores
// the listed networks, or all of them. Full recomputes never overlap: a
// scheduled tick or request arriving while one runs is skipped.
type Worker struct {
	bus        domain.EventBus
	recomputer Recomputer
	cfg        Config

	fullRunning atomic.Bool
	skipped     atomic.Int64

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a worker.
func NewWorker(eventBus domain.EventBus, recomputer Recomputer, cfg Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        eventBus,
		recomputer: recomputer,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the recompute topics and starts the schedule.
func (w *Worker) Start() error {
	topics := []struct {
		topic   string
		handler domain.MessageHandler
	}{
		{domain.TopicTagChanged, w.handleTagChanged},
		{domain.TopicScoreRecompute, w.handleRecompute},
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range topics {
		sub, err := w.bus.Subscribe(w.ctx, t.topic, t.handler)
		if err != nil {
			for _, s := range w.subscriptions {
				_ = s.Unsubscribe()
			}
			w.subscriptions = nil
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	if w.cfg.Interval > 0 {
		w.wg.Add(1)
		go w.schedule()
	}

	slog.Info("worker started",
		"topics", []string{domain.TopicTagChanged, domain.TopicScoreRecompute},
		"interval", w.cfg.Interval.String(),
	)
	return nil
}

func (w *Worker) schedule() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.runFull(w.ctx, "")
		}
	}
}

// handleTagChanged rescores the tagged network so its stored record
// reflects the new tag.
func (w *Worker) handleTagChanged(ctx context.Context, msg *domain.Message) error {
	var ev domain.TagChangedEvent
	if err := bus.Decode(msg, &ev); err != nil {
		return err
	}
	if ev.NetworkID == "" {
		return errors.New("tag change without network id")
	}

	w.recomputer.Invalidate(ctx, ev.NetworkID)
	_, err := w.recomputer.Recompute(ctx, "", []string{ev.NetworkID})
	if errors.Is(err, domain.ErrHomeLocationRequired) {
		slog.Warn("tag change not rescored: home location not set", "network_id", ev.NetworkID)
		return nil
	}
	return err
}

func (w *Worker) handleRecompute(ctx context.Context, msg *domain.Message) error {
	var req domain.RecomputeRequest
	if err := bus.Decode(msg, &req); err != nil {
		return err
	}
	if len(req.NetworkIDs) == 0 {
		w.runFull(ctx, req.RunID)
		return nil
	}

	_, err := w.recomputer.Recompute(ctx, req.RunID, req.NetworkIDs)
	if errors.Is(err, domain.ErrHomeLocationRequired) {
		slog.Warn("recompute skipped: home location not set", "run_id", req.RunID)
		return nil
	}
	return err
}

func (w *Worker) runFull(ctx context.Context, runID string) {
	if !w.fullRunning.CompareAndSwap(false, true) {
		w.skipped.Add(1)
		slog.Info("full recompute already running, skipping", "run_id", runID)
		return
	}
	defer w.fullRunning.Store(false)

	if _, err := w.recomputer.Recompute(ctx, runID, nil); err != nil {
		if errors.Is(err, domain.ErrHomeLocationRequired) {
			slog.Warn("full recompute skipped: home location not set")
			return
		}
		slog.Error("full recompute failed", "run_id", runID, "error", err)
	}
}

// Stop unsubscribes, cancels in-flight work and waits for the schedule.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats describes a running worker.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	FullRunActive     bool     `json:"fullRunActive"`
	SkippedFullRuns   int64    `json:"skippedFullRuns"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		FullRunActive:     w.fullRunning.Load(),
		SkippedFullRuns:   w.skipped.Load(),
	}
}
