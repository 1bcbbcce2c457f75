// Package features aggregates raw observations into per-network feature vectors.
package features

import (
	"math"
	"sort"
	"time"

	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/velocity"
)

// Extractor computes FeatureVectors. It holds only configuration and is
// safe for concurrent use.
type Extractor struct {
	cfg domain.FeatureConfig
}

// NewExtractor creates an extractor, filling zero config fields with defaults.
func NewExtractor(cfg domain.FeatureConfig) *Extractor {
	def := domain.DefaultFeatureConfig()
	if cfg.GridCellMeters <= 0 {
		cfg.GridCellMeters = def.GridCellMeters
	}
	if cfg.HomeRadiusMeters <= 0 {
		cfg.HomeRadiusMeters = def.HomeRadiusMeters
	}
	if cfg.AwayThresholdMeters <= 0 {
		cfg.AwayThresholdMeters = def.AwayThresholdMeters
	}
	if cfg.MaxPairwisePoints < 2 {
		cfg.MaxPairwisePoints = def.MaxPairwisePoints
	}
	return &Extractor{cfg: cfg}
}

// Config returns the effective configuration.
func (e *Extractor) Config() domain.FeatureConfig {
	return e.cfg
}

// Extract builds the feature vector of one network.
//
// Observations with timestamps below domain.MinValidTimestampMs are
// dropped and counted. Sparse data never fails: with fewer than two
// located observations the movement features are zero and the home/away
// flags are false.
func (e *Extractor) Extract(networkID string, home *domain.HomeLocation, obs []domain.Observation) (domain.FeatureVector, error) {
	fv := domain.FeatureVector{NetworkID: domain.NormalizeNetworkID(networkID)}
	if home == nil {
		return fv, domain.ErrHomeLocationRequired
	}

	homeRadiusM := e.cfg.HomeRadiusMeters
	if home.RadiusM > 0 {
		homeRadiusM = home.RadiusM
	}

	days := make(map[string]struct{})
	cells := make(map[velocity.CellKey]struct{})
	var located []velocity.Point
	var firstMs, lastMs int64

	for i := range obs {
		o := &obs[i]
		if !o.HasValidTimestamp() {
			fv.DroppedObservations++
			continue
		}

		if fv.ObservationCount == 0 || o.TimestampMs < firstMs {
			firstMs = o.TimestampMs
		}
		if fv.ObservationCount == 0 || o.TimestampMs > lastMs {
			lastMs = o.TimestampMs
		}
		fv.ObservationCount++
		days[time.UnixMilli(o.TimestampMs).UTC().Format(time.DateOnly)] = struct{}{}

		if o.IsLocated() {
			located = append(located, velocity.Point{Lat: o.Lat, Lon: o.Lon, TimestampMs: o.TimestampMs})
			cells[velocity.Cell(o.Lat, o.Lon, e.cfg.GridCellMeters)] = struct{}{}
		}
	}

	fv.UniqueDaysObserved = len(days)
	fv.UniqueLocationsObserved = len(cells)
	fv.LocatedCount = len(located)
	if fv.ObservationCount > 0 {
		fv.ObservationTimespanMs = lastMs - firstMs
	}

	if len(located) == 0 {
		return fv, nil
	}

	minKm, maxKm := math.Inf(1), 0.0
	var atHome, away bool
	var locFirst, locLast int64 = located[0].TimestampMs, located[0].TimestampMs
	for _, p := range located {
		d := velocity.HaversineKm(home.Lat, home.Lon, p.Lat, p.Lon)
		minKm = math.Min(minKm, d)
		maxKm = math.Max(maxKm, d)
		if d*1000 <= homeRadiusM {
			atHome = true
		}
		if d*1000 > e.cfg.AwayThresholdMeters {
			away = true
		}
		if p.TimestampMs < locFirst {
			locFirst = p.TimestampMs
		}
		if p.TimestampMs > locLast {
			locLast = p.TimestampMs
		}
	}
	fv.MinDistanceFromHomeKm = minKm
	fv.MaxDistanceFromHomeKm = maxKm

	// A single fix says nothing about movement.
	if len(located) < 2 {
		return fv, nil
	}

	fv.DistanceRangeKm = maxKm - minKm
	fv.SeenAtHome = atHome
	fv.SeenAwayFromHome = away

	pairwise := velocity.MaxPairwiseKm(located, e.cfg.GridCellMeters, e.cfg.MaxPairwisePoints)
	fv.MaxSpeedKmh = velocity.SpeedKmh(pairwise, locLast-locFirst)

	return fv, nil
}

// ExtractBatch extracts vectors for several networks, ordered by network id.
func (e *Extractor) ExtractBatch(home *domain.HomeLocation, obsByNetwork map[string][]domain.Observation) ([]domain.FeatureVector, error) {
	if home == nil {
		return nil, domain.ErrHomeLocationRequired
	}

	ids := make([]string, 0, len(obsByNetwork))
	for id := range obsByNetwork {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.FeatureVector, 0, len(ids))
	for _, id := range ids {
		fv, err := e.Extract(id, home, obsByNetwork[id])
		if err != nil {
			return nil, err
		}
		out = append(out, fv)
	}
	return out, nil
}
