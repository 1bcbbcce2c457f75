// Package decision turns rule and model scores into a final, explained
// threat classification that respects analyst override tags.
package decision

import "github.com/radiowatch/radiowatch/internal/domain"

// Weights of the tag blend: computed*0.7 + confidence*100*0.3.
const (
	computedWeight = 0.7
	tagWeight      = 0.3
)

// Blend is the state of the score blender. Stages only move forward,
// RAW → BLENDED or RAW → OVERRIDDEN, and each transition is a pure function.
type Blend struct {
	Stage         domain.ScoreStage
	ComputedScore float64
	FinalScore    float64
	AppliedTag    domain.TagType
}

// Raw starts the blender. Rule and model scores are independent alarms,
// so the computed score is their maximum. A nil ml means no model.
func Raw(ruleScore float64, ml *float64) Blend {
	computed := ruleScore
	if ml != nil && *ml > computed {
		computed = *ml
	}
	return Blend{
		Stage:         domain.StageRaw,
		ComputedScore: computed,
		FinalScore:    computed,
	}
}

// WithTag applies an analyst tag. FALSE_POSITIVE overrides, THREAT,
// SUSPECT and INVESTIGATE blend, LEGIT and no tag leave the score raw.
// Only a RAW blend transitions.
func (b Blend) WithTag(tag *domain.UserTag) Blend {
	if b.Stage != domain.StageRaw || tag == nil {
		return b
	}
	switch tag.TagType {
	case domain.TagFalsePositive:
		return b.override(tag)
	case domain.TagThreat, domain.TagSuspect, domain.TagInvestigate:
		return b.blend(tag)
	}
	return b
}

// blend nudges the computed score toward the analyst's confidence.
func (b Blend) blend(tag *domain.UserTag) Blend {
	return Blend{
		Stage:         domain.StageBlended,
		ComputedScore: b.ComputedScore,
		FinalScore:    b.ComputedScore*computedWeight + clampConfidence(tag.Confidence)*100*tagWeight,
		AppliedTag:    tag.TagType,
	}
}

// override keeps the computed score for audit; Level reports NONE.
func (b Blend) override(tag *domain.UserTag) Blend {
	return Blend{
		Stage:         domain.StageOverridden,
		ComputedScore: b.ComputedScore,
		FinalScore:    b.ComputedScore,
		AppliedTag:    tag.TagType,
	}
}

// Level classifies the blend. An overridden blend is always NONE.
func (b Blend) Level() domain.ThreatLevel {
	if b.Stage == domain.StageOverridden {
		return domain.LevelNone
	}
	return Classify(b.FinalScore)
}

// Apply runs the full blender: raw, then tag.
func Apply(ruleScore float64, ml *float64, tag *domain.UserTag) Blend {
	return Raw(ruleScore, ml).WithTag(tag)
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
