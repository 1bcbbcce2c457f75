package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/radiowatch/radiowatch/internal/domain"
)

// SaveScoreRecord inserts or replaces the score of a network.
func (r *SQLRepository) SaveScoreRecord(ctx context.Context, rec *domain.ScoreRecord) error {
	if rec == nil || rec.NetworkID == "" {
		return fmt.Errorf("%w: score record needs a network id", ErrInvalidInput)
	}

	signals := rec.RuleBasedSignals
	if signals == nil {
		signals = []domain.ThreatSignal{}
	}
	signalsJSON, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	featuresJSON, err := json.Marshal(&rec.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	warningsJSON, err := json.Marshal(nonNilStrings(rec.Warnings))
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}

	signalCount := 0
	for _, s := range signals {
		if s.Code != domain.SignalMissingThreatReasons {
			signalCount++
		}
	}

	_, err = r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO network_scores (
			network_id, rule_based_score, rule_signals, signal_count,
			ml_score, ml_probability, ml_model_version, ml_status,
			computed_score, final_score, final_level, threat_type, stage, applied_tag,
			candidate, exclusion_reason, transparency_error,
			unique_days, min_distance_from_home_km, max_distance_from_home_km, distance_range_km,
			features, warnings, home_key, scored_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (network_id) DO UPDATE SET
			rule_based_score = excluded.rule_based_score,
			rule_signals = excluded.rule_signals,
			signal_count = excluded.signal_count,
			ml_score = excluded.ml_score,
			ml_probability = excluded.ml_probability,
			ml_model_version = excluded.ml_model_version,
			ml_status = excluded.ml_status,
			computed_score = excluded.computed_score,
			final_score = excluded.final_score,
			final_level = excluded.final_level,
			threat_type = excluded.threat_type,
			stage = excluded.stage,
			applied_tag = excluded.applied_tag,
			candidate = excluded.candidate,
			exclusion_reason = excluded.exclusion_reason,
			transparency_error = excluded.transparency_error,
			unique_days = excluded.unique_days,
			min_distance_from_home_km = excluded.min_distance_from_home_km,
			max_distance_from_home_km = excluded.max_distance_from_home_km,
			distance_range_km = excluded.distance_range_km,
			features = excluded.features,
			warnings = excluded.warnings,
			home_key = excluded.home_key,
			scored_at = excluded.scored_at
	`),
		rec.NetworkID, rec.RuleBasedScore, string(signalsJSON), signalCount,
		nullFloat(rec.MLScore), nullFloat(rec.MLProbability), rec.MLModelVersion, string(rec.MLStatus),
		rec.ComputedScore, rec.FinalScore, string(rec.FinalLevel), rec.ThreatType, string(rec.Stage), string(rec.AppliedTag),
		boolToInt(rec.Candidate), rec.ExclusionReason, boolToInt(rec.TransparencyError),
		rec.Features.UniqueDaysObserved, rec.Features.MinDistanceFromHomeKm,
		rec.Features.MaxDistanceFromHomeKm, rec.Features.DistanceRangeKm,
		string(featuresJSON), string(warningsJSON), rec.HomeKey, rec.ScoredAt.UTC(),
	)
	return err
}

// GetScoreRecord retrieves the stored score of a network.
func (r *SQLRepository) GetScoreRecord(ctx context.Context, networkID string) (*domain.ScoreRecord, error) {
	var (
		rec                       domain.ScoreRecord
		signalsJSON, featuresJSON string
		warningsJSON              string
		signalCount               int
		mlScore, mlProb           sql.NullFloat64
		mlStatus, level, stage    string
		appliedTag                string
		candidate, transparency   int
	)

	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT network_id, rule_based_score, rule_signals, signal_count,
		       ml_score, ml_probability, ml_model_version, ml_status,
		       computed_score, final_score, final_level, threat_type, stage, applied_tag,
		       candidate, exclusion_reason, transparency_error,
		       features, warnings, home_key, scored_at
		FROM network_scores
		WHERE network_id = ?
	`), domain.NormalizeNetworkID(networkID)).Scan(
		&rec.NetworkID, &rec.RuleBasedScore, &signalsJSON, &signalCount,
		&mlScore, &mlProb, &rec.MLModelVersion, &mlStatus,
		&rec.ComputedScore, &rec.FinalScore, &level, &rec.ThreatType, &stage, &appliedTag,
		&candidate, &rec.ExclusionReason, &transparency,
		&featuresJSON, &warningsJSON, &rec.HomeKey, &rec.ScoredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(signalsJSON), &rec.RuleBasedSignals); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	if err := json.Unmarshal([]byte(featuresJSON), &rec.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := json.Unmarshal([]byte(warningsJSON), &rec.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	if len(rec.Warnings) == 0 {
		rec.Warnings = nil
	}

	rec.MLScore = floatPtr(mlScore)
	rec.MLProbability = floatPtr(mlProb)
	rec.MLStatus = domain.MLStatus(mlStatus)
	rec.FinalLevel = domain.ThreatLevel(level)
	rec.Stage = domain.ScoreStage(stage)
	rec.AppliedTag = domain.TagType(appliedTag)
	rec.Candidate = candidate == 1
	rec.TransparencyError = transparency == 1
	return &rec, nil
}

// CountStaleScores counts score records whose distances were measured from
// a home other than homeKey.
func (r *SQLRepository) CountStaleScores(ctx context.Context, homeKey string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT COUNT(*) FROM network_scores WHERE home_key <> ?`,
	), homeKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale scores: %w", err)
	}
	return n, nil
}

// ListScoreSummaries returns every stored score joined with its current tag,
// ordered by network id.
func (r *SQLRepository) ListScoreSummaries(ctx context.Context) ([]domain.ScoreSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.network_id, s.rule_based_score, s.ml_score, s.signal_count,
		       s.candidate, s.transparency_error,
		       t.tag_type, t.confidence, t.notes, t.tagged_at
		FROM network_scores s
		LEFT JOIN network_tags t ON t.network_id = s.network_id
		ORDER BY s.network_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScoreSummary
	for rows.Next() {
		var (
			s                       domain.ScoreSummary
			mlScore                 sql.NullFloat64
			candidate, transparency int
			tagType, notes          sql.NullString
			confidence              sql.NullFloat64
			taggedAt                sql.NullTime
		)
		if err := rows.Scan(
			&s.NetworkID, &s.RuleBasedScore, &mlScore, &s.SignalCount,
			&candidate, &transparency,
			&tagType, &confidence, &notes, &taggedAt,
		); err != nil {
			return nil, err
		}
		s.MLScore = floatPtr(mlScore)
		s.Candidate = candidate == 1
		s.TransparencyError = transparency == 1
		if tagType.Valid {
			s.Tag = &domain.UserTag{
				NetworkID:  s.NetworkID,
				TagType:    domain.TagType(tagType.String),
				Confidence: confidence.Float64,
				Notes:      notes.String,
				TaggedAt:   taggedAt.Time,
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
