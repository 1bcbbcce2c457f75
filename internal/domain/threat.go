package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goccy/go-json"
)

// ThreatLevel is the discrete classification of a network.
type ThreatLevel string

const (
	LevelNone     ThreatLevel = "NONE"
	LevelLow      ThreatLevel = "LOW"
	LevelMed      ThreatLevel = "MED"
	LevelHigh     ThreatLevel = "HIGH"
	LevelCritical ThreatLevel = "CRITICAL"
)

// ThreatLevels lists every level from least to most severe.
var ThreatLevels = []ThreatLevel{LevelNone, LevelLow, LevelMed, LevelHigh, LevelCritical}

// Valid reports whether l is a known level.
func (l ThreatLevel) Valid() bool {
	for _, v := range ThreatLevels {
		if v == l {
			return true
		}
	}
	return false
}

// SignalCode identifies a rule that contributed to a score.
type SignalCode string

const (
	SignalHomeAndAway          SignalCode = "HOME_AND_AWAY"
	SignalExcessiveMovement    SignalCode = "EXCESSIVE_MOVEMENT"
	SignalSpeedPattern         SignalCode = "SPEED_PATTERN"
	SignalTemporalPattern      SignalCode = "TEMPORAL_PATTERN"
	SignalHighObservationCount SignalCode = "HIGH_OBSERVATION_COUNT"

	// SignalMissingThreatReasons is a pseudo-signal marking a classification
	// that no rule explains.
	SignalMissingThreatReasons SignalCode = "MISSING_THREAT_REASONS"
)

// ThreatSignal is one triggered rule together with the evidence that made it fire.
type ThreatSignal struct {
	Code     SignalCode     `json:"code"`
	Weight   float64        `json:"weight"`
	Evidence map[string]any `json:"evidence"`
}

// ScoreStage records which blending transition produced the final score.
type ScoreStage string

const (
	StageRaw        ScoreStage = "RAW"
	StageBlended    ScoreStage = "BLENDED"
	StageOverridden ScoreStage = "OVERRIDDEN"
)

// MLStatus records whether the statistical model contributed to a score.
type MLStatus string

const (
	MLStatusScored  MLStatus = "scored"
	MLStatusNoModel MLStatus = "no_model"
)

// ScoreRecord is the persisted threat assessment of one network.
// It is only ever replaced as a whole by a recompute.
type ScoreRecord struct {
	NetworkID        string         `json:"networkId"`
	RuleBasedScore   float64        `json:"ruleBasedScore"`
	RuleBasedSignals []ThreatSignal `json:"ruleBasedSignals"`
	MLScore          *float64       `json:"mlScore,omitempty"`
	MLProbability    *float64       `json:"mlProbability,omitempty"`
	MLModelVersion   string         `json:"mlModelVersion,omitempty"`
	MLStatus         MLStatus       `json:"mlStatus"`

	ComputedScore float64     `json:"computedScore"`
	FinalScore    float64     `json:"finalScore"`
	FinalLevel    ThreatLevel `json:"finalLevel"`
	ThreatType    string      `json:"threatType,omitempty"`
	Stage         ScoreStage  `json:"stage"`
	AppliedTag    TagType     `json:"appliedTag,omitempty"`

	Candidate       bool   `json:"candidate"`
	ExclusionReason string `json:"exclusionReason,omitempty"`

	TransparencyError bool          `json:"transparencyError"`
	Features          FeatureVector `json:"features"`
	HomeKey           string        `json:"homeKey,omitempty"`
	Warnings          []string      `json:"warnings,omitempty"`
	ScoredAt          time.Time     `json:"scoredAt"`
}

// Fingerprint hashes every field except ScoredAt. Two recomputes over the
// same inputs produce the same fingerprint.
func (r *ScoreRecord) Fingerprint() string {
	clone := *r
	clone.ScoredAt = time.Time{}
	data, err := json.Marshal(&clone)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HasSignal reports whether the record carries a signal with the given code.
func (r *ScoreRecord) HasSignal(code SignalCode) bool {
	for _, s := range r.RuleBasedSignals {
		if s.Code == code {
			return true
		}
	}
	return false
}

// ScoreSummary is the slice of a score record plus its current tag that
// severity aggregation needs.
type ScoreSummary struct {
	NetworkID         string
	RuleBasedScore    float64
	MLScore           *float64
	SignalCount       int // rule signals, excluding MISSING_THREAT_REASONS
	Candidate         bool
	TransparencyError bool
	Tag               *UserTag
}

// SeverityCounts is the threat aggregate by level.
type SeverityCounts struct {
	ByLevel               map[ThreatLevel]int `json:"byLevel"`
	Total                 int                 `json:"total"`
	ThreatsWithoutReasons int                 `json:"threatsWithoutReasons"`
	Excluded              int                 `json:"excluded"`
}

// RuleWeights configures the rule-based scorer. Thresholds and weights
// are data so they can be tuned without touching scoring logic.
type RuleWeights struct {
	HomeAndAway float64 `json:"homeAndAway" koanf:"home_and_away" validate:"gte=0"`

	ExcessiveMovement   float64 `json:"excessiveMovement" koanf:"excessive_movement" validate:"gte=0"`
	ExcessiveMovementKm float64 `json:"excessiveMovementKm" koanf:"excessive_movement_km" validate:"gte=0"`

	SpeedHighKmh      float64 `json:"speedHighKmh" koanf:"speed_high_kmh" validate:"gte=0"`
	SpeedHighWeight   float64 `json:"speedHighWeight" koanf:"speed_high_weight" validate:"gte=0"`
	SpeedMediumKmh    float64 `json:"speedMediumKmh" koanf:"speed_medium_kmh" validate:"gte=0"`
	SpeedMediumWeight float64 `json:"speedMediumWeight" koanf:"speed_medium_weight" validate:"gte=0"`
	SpeedLowKmh       float64 `json:"speedLowKmh" koanf:"speed_low_kmh" validate:"gte=0"`
	SpeedLowWeight    float64 `json:"speedLowWeight" koanf:"speed_low_weight" validate:"gte=0"`

	DaysHigh         int     `json:"daysHigh" koanf:"days_high" validate:"gte=0"`
	DaysHighWeight   float64 `json:"daysHighWeight" koanf:"days_high_weight" validate:"gte=0"`
	DaysMedium       int     `json:"daysMedium" koanf:"days_medium" validate:"gte=0"`
	DaysMediumWeight float64 `json:"daysMediumWeight" koanf:"days_medium_weight" validate:"gte=0"`
	DaysLow          int     `json:"daysLow" koanf:"days_low" validate:"gte=0"`
	DaysLowWeight    float64 `json:"daysLowWeight" koanf:"days_low_weight" validate:"gte=0"`

	CountHigh       int     `json:"countHigh" koanf:"count_high" validate:"gte=0"`
	CountHighWeight float64 `json:"countHighWeight" koanf:"count_high_weight" validate:"gte=0"`
	CountLow        int     `json:"countLow" koanf:"count_low" validate:"gte=0"`
	CountLowWeight  float64 `json:"countLowWeight" koanf:"count_low_weight" validate:"gte=0"`
}

// DefaultRuleWeights returns the standard rule weights.
func DefaultRuleWeights() RuleWeights {
	return RuleWeights{
		HomeAndAway: 40,

		ExcessiveMovement:   25,
		ExcessiveMovementKm: 0.2,

		SpeedHighKmh:      100,
		SpeedHighWeight:   20,
		SpeedMediumKmh:    50,
		SpeedMediumWeight: 15,
		SpeedLowKmh:       20,
		SpeedLowWeight:    10,

		DaysHigh:         7,
		DaysHighWeight:   15,
		DaysMedium:       3,
		DaysMediumWeight: 10,
		DaysLow:          2,
		DaysLowWeight:    5,

		CountHigh:       50,
		CountHighWeight: 10,
		CountLow:        20,
		CountLowWeight:  5,
	}
}
