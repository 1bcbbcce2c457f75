// Package scoring runs threat recomputes: it loads each network's
// observations, home location, model and tag, scores the network and
// persists the record, then notifies the cache and the event bus.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/radiowatch/radiowatch/internal/bus"
	"github.com/radiowatch/radiowatch/internal/decision"
	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/features"
	"github.com/radiowatch/radiowatch/internal/metrics"
)

var tracer = otel.Tracer("radiowatch-scoring")

const (
	defaultBatchSize = 500
	defaultWorkers   = 8
	defaultScoreTTL  = 10 * time.Minute

	// maxReportedErrors caps the per-network errors joined into a run error.
	maxReportedErrors = 10
)

// Options tunes a Service.
type Options struct {
	BatchSize int
	Workers   int
	ModelType string
	ScoreTTL  time.Duration

	// Now stamps ScoredAt. It is read once per run.
	Now func() time.Time
}

// Service recomputes and serves score records.
// Cache and Bus are optional.
type Service struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	extractor *features.Extractor
	processor *decision.Processor
	opts      Options
}

// NewService creates a scoring service.
func NewService(repo domain.Repository, cache domain.Cache, eventBus domain.EventBus,
	extractor *features.Extractor, processor *decision.Processor, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.ModelType == "" {
		opts.ModelType = domain.DefaultModelType
	}
	if opts.ScoreTTL <= 0 {
		opts.ScoreTTL = defaultScoreTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		bus:       eventBus,
		extractor: extractor,
		processor: processor,
		opts:      opts,
	}
}

// RunResult summarizes a batch recompute.
type RunResult struct {
	RunID     string                     `json:"runId"`
	StartedAt time.Time                  `json:"startedAt"`
	Duration  time.Duration              `json:"durationNs"`
	Scored    int                        `json:"scored"`
	Failed    int                        `json:"failed"`
	ByLevel   map[domain.ThreatLevel]int `json:"byLevel"`
	Cancelled bool                       `json:"cancelled"`
}

// runState holds what every network of one run shares.
type runState struct {
	id       string
	home     *domain.HomeLocation
	model    *domain.ModelConfig
	scoredAt time.Time

	mu     sync.Mutex
	result *RunResult
	errs   []error
}

func (r *runState) record(rec *domain.ScoreRecord, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.result.Failed++
		if len(r.errs) < maxReportedErrors {
			r.errs = append(r.errs, err)
		}
		return
	}
	r.result.Scored++
	r.result.ByLevel[rec.FinalLevel]++
}

// RecomputeAll rescores every network, paging ids in batches.
func (s *Service) RecomputeAll(ctx context.Context) (*RunResult, error) {
	return s.Recompute(ctx, "", nil)
}

// Recompute rescores the given networks under runID. An empty list
// rescores every network; an empty runID gets a fresh one.
func (s *Service) Recompute(ctx context.Context, runID string, networkIDs []string) (*RunResult, error) {
	if len(networkIDs) == 0 {
		return s.run(ctx, runID, s.scoreAll)
	}
	return s.run(ctx, runID, func(ctx context.Context, st *runState) error {
		for start := 0; start < len(networkIDs); start += s.opts.BatchSize {
			end := min(start+s.opts.BatchSize, len(networkIDs))
			if err := s.scoreBatch(ctx, st, networkIDs[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
}

// scoreAll walks network ids in keyset order.
func (s *Service) scoreAll(ctx context.Context, st *runState) error {
	after := ""
	for {
		ids, err := s.repo.ListNetworkIDs(ctx, after, s.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("list networks after %q: %w", after, err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := s.scoreBatch(ctx, st, ids); err != nil {
			return err
		}
		after = ids[len(ids)-1]
	}
}

func (s *Service) run(ctx context.Context, runID string, body func(context.Context, *runState) error) (*RunResult, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx, span := tracer.Start(ctx, "scoring.recompute")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID))

	start := time.Now()
	st, err := s.prepare(ctx, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordScoringRun("failed", time.Since(start))
		return nil, err
	}

	slog.Info("recompute started",
		"run_id", runID,
		"model_version", modelVersion(st.model),
	)

	err = body(ctx, st)
	res := st.result
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("networks.scored", res.Scored),
		attribute.Int("networks.failed", res.Failed),
	)

	status := "completed"
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		status = "cancelled"
		res.Cancelled = true
	case err != nil:
		status = "failed"
	case len(st.errs) > 0:
		err = fmt.Errorf("%d networks failed to score: %w", res.Failed, errors.Join(st.errs...))
	}
	metrics.RecordScoringRun(status, res.Duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}

	slog.Info("recompute finished",
		"run_id", runID,
		"status", status,
		"scored", res.Scored,
		"failed", res.Failed,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, err
}

// prepare loads the inputs shared by every network of a run. A missing
// home location fails the run; a missing model scores on rules alone.
func (s *Service) prepare(ctx context.Context, runID string) (*runState, error) {
	home, err := s.loadHome(ctx)
	if err != nil {
		return nil, err
	}
	model, err := s.loadModel(ctx)
	if err != nil {
		return nil, err
	}

	scoredAt := s.opts.Now().UTC()
	return &runState{
		id:       runID,
		home:     home,
		model:    model,
		scoredAt: scoredAt,
		result: &RunResult{
			RunID:     runID,
			StartedAt: scoredAt,
			ByLevel:   make(map[domain.ThreatLevel]int, len(domain.ThreatLevels)),
		},
	}, nil
}

func (s *Service) loadHome(ctx context.Context) (*domain.HomeLocation, error) {
	home, err := s.repo.GetHomeLocation(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrHomeLocationRequired
	}
	if err != nil {
		return nil, fmt.Errorf("load home location: %w", err)
	}
	return home, nil
}

func (s *Service) loadModel(ctx context.Context) (*domain.ModelConfig, error) {
	model, err := s.repo.GetModelConfig(ctx, s.opts.ModelType)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", s.opts.ModelType, err)
	}
	return model, nil
}

// scoreBatch fans a batch out over the worker pool. Cancellation is
// checked before each network; networks already in flight finish.
func (s *Service) scoreBatch(ctx context.Context, st *runState, ids []string) error {
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.opts.Workers)

	var cancelled error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}

		sem <- struct{}{} // Acquire
		wg.Add(1)
		go func(networkID string) {
			defer wg.Done()
			defer func() { <-sem }() // Release

			rec, err := s.scoreNetwork(ctx, st, networkID)
			if err != nil {
				metrics.ScoringErrorsTotal.Inc()
				slog.Error("network scoring failed",
					"run_id", st.id,
					"network_id", networkID,
					"error", err,
				)
			}
			st.record(rec, err)
		}(id)
	}

	wg.Wait()
	return cancelled
}

// scoreNetwork computes, persists and announces one network's score.
func (s *Service) scoreNetwork(ctx context.Context, st *runState, networkID string) (*domain.ScoreRecord, error) {
	id := domain.NormalizeNetworkID(networkID)

	obs, err := s.repo.ListObservations(ctx, id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("load observations for %s: %w", id, err)
	}

	radio := domain.RadioUnknown
	network, err := s.repo.GetNetwork(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if len(obs) == 0 {
			return nil, fmt.Errorf("network %s: %w", id, domain.ErrNotFound)
		}
		radio = obs[len(obs)-1].RadioType
	case err != nil:
		return nil, fmt.Errorf("load network %s: %w", id, err)
	default:
		radio = network.RadioType
	}

	tag, err := s.repo.GetTag(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		tag = nil
	} else if err != nil {
		return nil, fmt.Errorf("load tag for %s: %w", id, err)
	}

	fv, err := s.extractor.Extract(id, st.home, obs)
	if err != nil {
		return nil, fmt.Errorf("extract features for %s: %w", id, err)
	}

	rec, err := s.processor.Process(&decision.Input{
		Features:  fv,
		RadioType: radio,
		Model:     st.model,
		Tag:       tag,
		HomeKey:   st.home.Key(),
		ScoredAt:  st.scoredAt,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveScoreRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("save score for %s: %w", id, err)
	}
	metrics.RecordNetworkScored(string(rec.FinalLevel), rec.TransparencyError)

	if rec.TransparencyError {
		slog.Warn("classification without explaining signals",
			"network_id", id,
			"final_level", rec.FinalLevel,
			"final_score", rec.FinalScore,
		)
	}

	s.invalidate(ctx, id)
	s.announce(ctx, rec)
	return rec, nil
}

// RecomputeOne rescores a single network and returns the new record.
func (s *Service) RecomputeOne(ctx context.Context, networkID string) (*domain.ScoreRecord, error) {
	ctx, span := tracer.Start(ctx, "scoring.recompute_one")
	defer span.End()
	span.SetAttributes(attribute.String("network.id", networkID))

	st, err := s.prepare(ctx, "")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	rec, err := s.scoreNetwork(ctx, st, networkID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return rec, nil
}

// Score returns the stored score of a network, served from the cache
// when possible.
func (s *Service) Score(ctx context.Context, networkID string) (*domain.ScoreRecord, error) {
	id := domain.NormalizeNetworkID(networkID)
	if s.cache != nil {
		rec, err := s.cache.GetScore(ctx, id)
		if err != nil {
			slog.Warn("score cache read failed", "network_id", id, "error", err)
		} else if rec != nil {
			metrics.RecordCacheLookup("score", true)
			return rec, nil
		}
		metrics.RecordCacheLookup("score", false)
	}

	rec, err := s.repo.GetScoreRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetScore(ctx, rec, s.opts.ScoreTTL); err != nil {
			slog.Warn("score cache write failed", "network_id", id, "error", err)
		}
	}
	return rec, nil
}

// Severity aggregates threat levels over the current score and tag state.
func (s *Service) Severity(ctx context.Context) (domain.SeverityCounts, error) {
	summaries, err := s.repo.ListScoreSummaries(ctx)
	if err != nil {
		return domain.SeverityCounts{}, fmt.Errorf("list score summaries: %w", err)
	}
	return decision.Severity(summaries), nil
}

// Invalidate drops the cached score of a network.
func (s *Service) Invalidate(ctx context.Context, networkID string) {
	s.invalidate(ctx, domain.NormalizeNetworkID(networkID))
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateScore(ctx, id); err != nil {
		slog.Warn("score cache invalidation failed", "network_id", id, "error", err)
	}
}

// announce publishes score.updated, plus threat.alert for HIGH and
// CRITICAL candidates. Bus failures are logged; the record is already saved.
func (s *Service) announce(ctx context.Context, rec *domain.ScoreRecord) {
	if s.bus == nil {
		return
	}

	ev := domain.ScoreEvent{
		NetworkID:         rec.NetworkID,
		FinalScore:        rec.FinalScore,
		FinalLevel:        rec.FinalLevel,
		ThreatType:        rec.ThreatType,
		Candidate:         rec.Candidate,
		TransparencyError: rec.TransparencyError,
		ScoredAt:          rec.ScoredAt.UnixMilli(),
	}
	if err := bus.PublishJSON(ctx, s.bus, domain.TopicScoreUpdated, ev); err != nil {
		slog.Warn("score event publish failed", "network_id", rec.NetworkID, "error", err)
	}

	if rec.Candidate && (rec.FinalLevel == domain.LevelHigh || rec.FinalLevel == domain.LevelCritical) {
		if err := bus.PublishJSON(ctx, s.bus, domain.TopicThreatAlert, ev); err != nil {
			slog.Warn("threat alert publish failed", "network_id", rec.NetworkID, "error", err)
		}
	}
}

func modelVersion(m *domain.ModelConfig) string {
	if m == nil {
		return ""
	}
	return m.Version
}
