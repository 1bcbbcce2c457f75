package decision

import "github.com/radiowatch/radiowatch/internal/domain"

// EnforceTransparency checks that a non-NONE classification carries at
// least one reason. When it does not, a MISSING_THREAT_REASONS pseudo-signal
// is injected and the record is flagged. It reports whether a fault was
// recorded. The fault is data, never an error.
func EnforceTransparency(rec *domain.ScoreRecord) bool {
	if rec.FinalLevel == domain.LevelNone || len(rec.RuleBasedSignals) > 0 {
		return false
	}

	evidence := map[string]any{
		"finalScore": rec.FinalScore,
		"finalLevel": string(rec.FinalLevel),
	}
	if rec.MLScore != nil {
		evidence["mlScore"] = *rec.MLScore
	}

	rec.RuleBasedSignals = append(rec.RuleBasedSignals, domain.ThreatSignal{
		Code:     domain.SignalMissingThreatReasons,
		Weight:   0,
		Evidence: evidence,
	})
	rec.TransparencyError = true
	return true
}

// IsTransparent reports whether rec satisfies the invariant: a non-NONE
// level implies rule signals or a recorded transparency error.
func IsTransparent(rec *domain.ScoreRecord) bool {
	return rec.FinalLevel == domain.LevelNone || len(rec.RuleBasedSignals) > 0 || rec.TransparencyError
}
