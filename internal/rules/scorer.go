// Package rules provides the deterministic rule-based threat scorer and the
// CEL candidate policy applied to its results.
package rules

import (
	"fmt"

	"github.com/radiowatch/radiowatch/internal/domain"
)

const maxScore = 100.0

// Result is the output of the rule-based scorer.
type Result struct {
	Score   float64               `json:"score"`
	Signals []domain.ThreatSignal `json:"signals"`
}

// Scorer is a weighted-sum scorer over a FeatureVector. It is radio-type
// agnostic; cellular exclusion belongs to CandidatePolicy.
type Scorer struct {
	w domain.RuleWeights
}

// NewScorer validates weights and returns a scorer.
func NewScorer(w domain.RuleWeights) (*Scorer, error) {
	if err := validateWeights(w); err != nil {
		return nil, err
	}
	return &Scorer{w: w}, nil
}

// Weights returns the scorer's configured weights.
func (s *Scorer) Weights() domain.RuleWeights {
	return s.w
}

// Score evaluates every rule. Signals are emitted in a fixed order:
// HOME_AND_AWAY, EXCESSIVE_MOVEMENT, SPEED_PATTERN, TEMPORAL_PATTERN,
// HIGH_OBSERVATION_COUNT. The score is clamped to [0, 100].
func (s *Scorer) Score(fv *domain.FeatureVector) Result {
	res := Result{Signals: []domain.ThreatSignal{}}
	add := func(code domain.SignalCode, weight float64, evidence map[string]any) {
		res.Score += weight
		res.Signals = append(res.Signals, domain.ThreatSignal{Code: code, Weight: weight, Evidence: evidence})
	}

	if fv.SeenAtHome && fv.SeenAwayFromHome {
		add(domain.SignalHomeAndAway, s.w.HomeAndAway, map[string]any{
			"seenAtHome":       true,
			"seenAwayFromHome": true,
		})
	}

	if fv.DistanceRangeKm > s.w.ExcessiveMovementKm {
		add(domain.SignalExcessiveMovement, s.w.ExcessiveMovement, map[string]any{
			"distanceRangeKm": fv.DistanceRangeKm,
			"threshold":       s.w.ExcessiveMovementKm,
		})
	}

	if weight, threshold, ok := s.speedTier(fv.MaxSpeedKmh); ok {
		add(domain.SignalSpeedPattern, weight, map[string]any{
			"maxSpeedKmh": fv.MaxSpeedKmh,
			"threshold":   threshold,
		})
	}

	if weight, ok := s.daysTier(fv.UniqueDaysObserved); ok {
		add(domain.SignalTemporalPattern, weight, map[string]any{
			"uniqueDaysObserved": fv.UniqueDaysObserved,
			"threshold":          s.w.DaysLow,
		})
	}

	if weight, ok := s.countTier(fv.ObservationCount); ok {
		add(domain.SignalHighObservationCount, weight, map[string]any{
			"observationCount": fv.ObservationCount,
			"threshold":        s.w.CountLow,
		})
	}

	res.Score = clamp(res.Score)
	return res
}

func (s *Scorer) speedTier(kmh float64) (weight, threshold float64, ok bool) {
	switch {
	case kmh > s.w.SpeedHighKmh:
		return s.w.SpeedHighWeight, s.w.SpeedHighKmh, true
	case kmh > s.w.SpeedMediumKmh:
		return s.w.SpeedMediumWeight, s.w.SpeedMediumKmh, true
	case kmh > s.w.SpeedLowKmh:
		return s.w.SpeedLowWeight, s.w.SpeedLowKmh, true
	}
	return 0, 0, false
}

func (s *Scorer) daysTier(days int) (float64, bool) {
	switch {
	case days >= s.w.DaysHigh:
		return s.w.DaysHighWeight, true
	case days >= s.w.DaysMedium:
		return s.w.DaysMediumWeight, true
	case days >= s.w.DaysLow:
		return s.w.DaysLowWeight, true
	}
	return 0, false
}

func (s *Scorer) countTier(count int) (float64, bool) {
	switch {
	case count >= s.w.CountHigh:
		return s.w.CountHighWeight, true
	case count >= s.w.CountLow:
		return s.w.CountLowWeight, true
	}
	return 0, false
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

func validateWeights(w domain.RuleWeights) error {
	values := map[string]float64{
		"home_and_away":         w.HomeAndAway,
		"excessive_movement":    w.ExcessiveMovement,
		"excessive_movement_km": w.ExcessiveMovementKm,
		"speed_high_kmh":        w.SpeedHighKmh,
		"speed_high_weight":     w.SpeedHighWeight,
		"speed_medium_kmh":      w.SpeedMediumKmh,
		"speed_medium_weight":   w.SpeedMediumWeight,
		"speed_low_kmh":         w.SpeedLowKmh,
		"speed_low_weight":      w.SpeedLowWeight,
		"days_high":             float64(w.DaysHigh),
		"days_high_weight":      w.DaysHighWeight,
		"days_medium":           float64(w.DaysMedium),
		"days_medium_weight":    w.DaysMediumWeight,
		"days_low":              float64(w.DaysLow),
		"days_low_weight":       w.DaysLowWeight,
		"count_high":            float64(w.CountHigh),
		"count_high_weight":     w.CountHighWeight,
		"count_low":             float64(w.CountLow),
		"count_low_weight":      w.CountLowWeight,
	}
	for name, v := range values {
		if v < 0 {
			return fmt.Errorf("%w: rule weight %s must not be negative", domain.ErrInvalidInput, name)
		}
	}

	if w.SpeedHighKmh < w.SpeedMediumKmh || w.SpeedMediumKmh < w.SpeedLowKmh {
		return fmt.Errorf("%w: speed tiers must be ordered high >= medium >= low", domain.ErrInvalidInput)
	}
	if w.DaysHigh < w.DaysMedium || w.DaysMedium < w.DaysLow {
		return fmt.Errorf("%w: day tiers must be ordered high >= medium >= low", domain.ErrInvalidInput)
	}
	if w.CountHigh < w.CountLow {
		return fmt.Errorf("%w: count tiers must be ordered high >= low", domain.ErrInvalidInput)
	}
	return nil
}
