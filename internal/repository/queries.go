package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/radiowatch/radiowatch/internal/domain"
)

// QueryNetworks runs a listing query produced by the filter builder.
// Rows must carry the builder's list column order.
func (r *SQLRepository) QueryNetworks(ctx context.Context, q domain.SQLQuery) ([]domain.NetworkThreat, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(q.SQL), q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query networks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.NetworkThreat, 0)
	for rows.Next() {
		var (
			n                       domain.NetworkThreat
			best, lat, lon          sql.NullFloat64
			finalScore, ruleScore   sql.NullFloat64
			mlScore, minDist        sql.NullFloat64
			finalLevel, threatType  sql.NullString
			candidate, transparency sql.NullInt64
			uniqueDays              sql.NullInt64
			tagType                 sql.NullString
			tagConfidence           sql.NullFloat64
		)
		if err := rows.Scan(
			&n.NetworkID, &n.SSID, &n.RadioType, &n.FirstSeenMs, &n.LastSeenMs,
			&n.ObservationCount, &best, &lat, &lon,
			&finalScore, &finalLevel, &threatType, &ruleScore, &mlScore,
			&candidate, &transparency, &uniqueDays, &minDist,
			&tagType, &tagConfidence,
		); err != nil {
			return nil, err
		}

		n.BestSignalDbm = floatPtr(best)
		n.LastLat = floatPtr(lat)
		n.LastLon = floatPtr(lon)

		n.Scored = finalScore.Valid
		n.FinalLevel = domain.LevelNone
		if n.Scored {
			n.FinalScore = finalScore.Float64
			n.FinalLevel = domain.ThreatLevel(finalLevel.String)
			n.ThreatType = threatType.String
			n.RuleBasedScore = ruleScore.Float64
			n.MLScore = floatPtr(mlScore)
			n.Candidate = candidate.Int64 == 1
			n.TransparencyError = transparency.Int64 == 1
			n.UniqueDays = int(uniqueDays.Int64)
			n.MinDistanceKm = floatPtr(minDist)
		}
		if tagType.Valid {
			n.TagType = domain.TagType(tagType.String)
			n.TagConfidence = floatPtr(tagConfidence)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountNetworks runs a count query produced by the filter builder.
func (r *SQLRepository) CountNetworks(ctx context.Context, q domain.SQLQuery) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, r.rebind(q.SQL), q.Args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count networks: %w", err)
	}
	return total, nil
}

// QueryGeoPoints runs a geospatial query produced by the filter builder.
// Rows must carry the builder's geo column order.
func (r *SQLRepository) QueryGeoPoints(ctx context.Context, q domain.SQLQuery) ([]domain.GeoPoint, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(q.SQL), q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query geo points: %w", err)
	}
	defer rows.Close()

	out := make([]domain.GeoPoint, 0)
	for rows.Next() {
		var (
			p      domain.GeoPoint
			signal sql.NullFloat64
			level  string
		)
		if err := rows.Scan(&p.NetworkID, &p.Lat, &p.Lon, &p.TimestampMs, &signal, &p.RadioType, &level); err != nil {
			return nil, err
		}
		p.SignalDbm = floatPtr(signal)
		p.FinalLevel = domain.ThreatLevel(level)
		out = append(out, p)
	}
	return out, rows.Err()
}
