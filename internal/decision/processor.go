package decision

import (
	"errors"
	"fmt"
	"time"

	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/linear"
	"github.com/radiowatch/radiowatch/internal/rules"
)

// Processor composes the rule scorer, the linear model, the blender, the
// classifier and the transparency validator into a ScoreRecord.
type Processor struct {
	scorer *rules.Scorer
	policy *rules.CandidatePolicy
}

// NewProcessor creates a processor. A nil policy accepts every network.
func NewProcessor(scorer *rules.Scorer, policy *rules.CandidatePolicy) *Processor {
	return &Processor{scorer: scorer, policy: policy}
}

// Input contains everything a score depends on. The model is passed
// explicitly so the result is a function of its inputs alone.
type Input struct {
	Features  domain.FeatureVector
	RadioType domain.RadioType
	Model     *domain.ModelConfig
	Tag       *domain.UserTag
	HomeKey   string
	ScoredAt  time.Time
}

// Process scores one network.
func (p *Processor) Process(in *Input) (*domain.ScoreRecord, error) {
	rule := p.scorer.Score(&in.Features)

	rec := &domain.ScoreRecord{
		NetworkID:        in.Features.NetworkID,
		RuleBasedScore:   rule.Score,
		RuleBasedSignals: rule.Signals,
		Features:         in.Features,
		Candidate:        true,
		HomeKey:          in.HomeKey,
		ScoredAt:         in.ScoredAt.UTC(),
	}

	ml, err := linear.Score(&in.Features, in.Model)
	switch {
	case errors.Is(err, domain.ErrModelNotTrained):
		rec.MLStatus = domain.MLStatusNoModel
		rec.Warnings = append(rec.Warnings, "no trained model; scored on rules alone")
	case err != nil:
		return nil, fmt.Errorf("model score for %s: %w", rec.NetworkID, err)
	default:
		rec.MLStatus = domain.MLStatusScored
		rec.MLScore = &ml.Score
		rec.MLProbability = &ml.Probability
		rec.MLModelVersion = ml.ModelVersion
		rec.Warnings = append(rec.Warnings, ml.Warnings...)
	}

	b := Apply(rec.RuleBasedScore, rec.MLScore, in.Tag)
	rec.ComputedScore = b.ComputedScore
	rec.FinalScore = b.FinalScore
	rec.Stage = b.Stage
	rec.AppliedTag = b.AppliedTag
	rec.FinalLevel = b.Level()
	rec.ThreatType = ThreatType(rec.RuleBasedSignals)

	if p.policy != nil {
		ok, reason, err := p.policy.Evaluate(in.RadioType, &in.Features)
		if err != nil {
			return nil, fmt.Errorf("candidate policy for %s: %w", rec.NetworkID, err)
		}
		rec.Candidate = ok
		rec.ExclusionReason = reason
	}

	EnforceTransparency(rec)
	return rec, nil
}

// Severity aggregates threat levels from the current score and tag state.
// Each summary is re-blended with its current tag, so a tag written after
// the last recompute is already reflected. Non-candidates are counted as
// Excluded and kept out of the per-level counts.
func Severity(summaries []domain.ScoreSummary) domain.SeverityCounts {
	counts := domain.SeverityCounts{ByLevel: make(map[domain.ThreatLevel]int, len(domain.ThreatLevels))}
	for _, l := range domain.ThreatLevels {
		counts.ByLevel[l] = 0
	}

	for i := range summaries {
		s := &summaries[i]
		if !s.Candidate {
			counts.Excluded++
			continue
		}
		level := Apply(s.RuleBasedScore, s.MLScore, s.Tag).Level()
		counts.ByLevel[level]++
		counts.Total++
		if level != domain.LevelNone && s.SignalCount == 0 {
			counts.ThreatsWithoutReasons++
		}
	}
	return counts
}
