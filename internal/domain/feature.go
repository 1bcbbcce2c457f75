package domain

import (
	"fmt"
	"strings"
	"time"
)

// HomeLocation is the analyst-configured reference point used for
// "seen at home" and "seen away" classification.
type HomeLocation struct {
	Lat       float64   `json:"lat" validate:"gte=-90,lte=90"`
	Lon       float64   `json:"lon" validate:"gte=-180,lte=180"`
	RadiusM   float64   `json:"radiusM" validate:"gte=0"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key identifies the geometry of a home location. Score records carry the
// key of the home they were measured from, so distances computed against
// an older home can be told apart. A nil home has an empty key.
func (h *HomeLocation) Key() string {
	if h == nil {
		return ""
	}
	return fmt.Sprintf("%.6f,%.6f,%.1f", h.Lat, h.Lon, h.RadiusM)
}

// FeatureVector is the per-network aggregate derived from observations.
// It is recomputed on demand and never stored as a source of truth.
type FeatureVector struct {
	NetworkID               string  `json:"networkId"`
	ObservationCount        int     `json:"observationCount"`
	LocatedCount            int     `json:"locatedCount"`
	DroppedObservations     int     `json:"droppedObservations,omitempty"`
	UniqueDaysObserved      int     `json:"uniqueDaysObserved"`
	UniqueLocationsObserved int     `json:"uniqueLocationsObserved"`
	MinDistanceFromHomeKm   float64 `json:"minDistanceFromHomeKm"`
	MaxDistanceFromHomeKm   float64 `json:"maxDistanceFromHomeKm"`
	DistanceRangeKm         float64 `json:"distanceRangeKm"`
	SeenAtHome              bool    `json:"seenAtHome"`
	SeenAwayFromHome        bool    `json:"seenAwayFromHome"`
	MaxSpeedKmh             float64 `json:"maxSpeedKmh"`
	ObservationTimespanMs   int64   `json:"observationTimespanMs"`
}

// FeatureNames lists the canonical names accepted by FeatureVector.Value.
var FeatureNames = []string{
	"observation_count",
	"located_count",
	"unique_days_observed",
	"unique_locations_observed",
	"min_distance_from_home_km",
	"max_distance_from_home_km",
	"distance_range_km",
	"seen_at_home",
	"seen_away_from_home",
	"max_speed_kmh",
	"observation_timespan_ms",
}

// Value returns the numeric value of a named feature. Names are matched
// case-insensitively with underscores ignored, so "distance_range_km" and
// "distanceRangeKm" resolve to the same feature. Booleans map to 0 or 1.
func (f *FeatureVector) Value(name string) (float64, bool) {
	switch canonicalFeatureName(name) {
	case "observationcount":
		return float64(f.ObservationCount), true
	case "locatedcount":
		return float64(f.LocatedCount), true
	case "uniquedaysobserved", "uniquedays":
		return float64(f.UniqueDaysObserved), true
	case "uniquelocationsobserved", "uniquelocations":
		return float64(f.UniqueLocationsObserved), true
	case "mindistancefromhomekm":
		return f.MinDistanceFromHomeKm, true
	case "maxdistancefromhomekm":
		return f.MaxDistanceFromHomeKm, true
	case "distancerangekm":
		return f.DistanceRangeKm, true
	case "seenathome":
		return boolFeature(f.SeenAtHome), true
	case "seenawayfromhome":
		return boolFeature(f.SeenAwayFromHome), true
	case "maxspeedkmh":
		return f.MaxSpeedKmh, true
	case "observationtimespanms":
		return float64(f.ObservationTimespanMs), true
	default:
		return 0, false
	}
}

func canonicalFeatureName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "")
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// FeatureConfig holds the spatial thresholds used by feature extraction.
type FeatureConfig struct {
	GridCellMeters      float64 `json:"gridCellMeters" koanf:"grid_cell_meters" validate:"gt=0"`
	HomeRadiusMeters    float64 `json:"homeRadiusMeters" koanf:"home_radius_meters" validate:"gt=0"`
	AwayThresholdMeters float64 `json:"awayThresholdMeters" koanf:"away_threshold_meters" validate:"gt=0"`
	MaxPairwisePoints   int     `json:"maxPairwisePoints" koanf:"max_pairwise_points" validate:"gte=2"`
}

// DefaultFeatureConfig returns the standard extraction thresholds.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		GridCellMeters:      100,
		HomeRadiusMeters:    100,
		AwayThresholdMeters: 500,
		MaxPairwisePoints:   1024,
	}
}
