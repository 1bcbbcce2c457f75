package decision

import "github.com/radiowatch/radiowatch/internal/domain"

// Threat type labels derived from which signals fired.
const (
	TypeMobileTracking   = "Mobile Tracking Device"
	TypePotentialStalker = "Potential Stalking Device"
	TypeMovement         = "Movement Detected"
	TypeLowRiskMovement  = "Low Risk Movement"
)

// Classify maps a score to a level using a fixed threshold ladder.
func Classify(score float64) domain.ThreatLevel {
	switch {
	case score >= 80:
		return domain.LevelCritical
	case score >= 60:
		return domain.LevelHigh
	case score >= 40:
		return domain.LevelMed
	case score >= 20:
		return domain.LevelLow
	}
	return domain.LevelNone
}

// ThreatType labels a signal set. It is a lookup, not a second scoring pass.
// No signals yields "".
func ThreatType(signals []domain.ThreatSignal) string {
	set := make(map[domain.SignalCode]bool, len(signals))
	for _, s := range signals {
		if s.Code == domain.SignalMissingThreatReasons {
			continue
		}
		set[s.Code] = true
	}

	switch {
	case len(set) == 0:
		return ""
	case set[domain.SignalHomeAndAway] && set[domain.SignalSpeedPattern]:
		return TypeMobileTracking
	case set[domain.SignalHomeAndAway]:
		return TypePotentialStalker
	case set[domain.SignalExcessiveMovement] || set[domain.SignalSpeedPattern]:
		return TypeMovement
	}
	return TypeLowRiskMovement
}
