package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/radiowatch/radiowatch/internal/domain"
)

// SaveObservations stores sightings and refreshes the summary row of every
// network they touch. Duplicate sightings (same network, time and position)
// are ignored.
func (r *SQLRepository) SaveObservations(ctx context.Context, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	touched := make(map[string]struct{})
	for i := range obs {
		id := domain.NormalizeNetworkID(obs[i].NetworkID)
		if id == "" {
			return fmt.Errorf("%w: observation %d has no network id", ErrInvalidInput, i)
		}
		touched[id] = struct{}{}
	}

	insert := r.rebind(`
		INSERT INTO observations (network_id, lat, lon, timestamp_ms, signal_dbm, radio_type, ssid)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (network_id, timestamp_ms, lat, lon) DO NOTHING
	`)

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("prepare observation insert: %w", err)
		}
		defer stmt.Close()

		for i := range obs {
			o := &obs[i]
			radio := o.RadioType
			if radio == "" {
				radio = domain.RadioUnknown
			}
			if _, err := stmt.ExecContext(ctx,
				domain.NormalizeNetworkID(o.NetworkID), o.Lat, o.Lon, o.TimestampMs,
				nullFloat(o.SignalDbm), string(radio), o.SSID,
			); err != nil {
				return fmt.Errorf("insert observation: %w", err)
			}
		}

		ids := make([]string, 0, len(touched))
		for id := range touched {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if err := r.refreshNetwork(ctx, tx, id); err != nil {
				return fmt.Errorf("refresh network %s: %w", id, err)
			}
		}
		return nil
	})
}

// refreshNetwork recomputes one networks row from its observations.
func (r *SQLRepository) refreshNetwork(ctx context.Context, tx *sql.Tx, id string) error {
	var (
		first, last sql.NullInt64
		count       int64
		best        sql.NullFloat64
	)
	err := tx.QueryRowContext(ctx, r.rebind(`
		SELECT MIN(timestamp_ms), MAX(timestamp_ms), COUNT(*), MAX(signal_dbm)
		FROM observations
		WHERE network_id = ? AND timestamp_ms >= ?
	`), id, domain.MinValidTimestampMs).Scan(&first, &last, &count, &best)
	if err != nil {
		return err
	}

	var radio string
	err = tx.QueryRowContext(ctx, r.rebind(`
		SELECT radio_type FROM observations
		WHERE network_id = ?
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`), id).Scan(&radio)
	if err != nil {
		return err
	}

	var ssid string
	err = tx.QueryRowContext(ctx, r.rebind(`
		SELECT ssid FROM observations
		WHERE network_id = ? AND ssid <> ''
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`), id).Scan(&ssid)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var lastLat, lastLon sql.NullFloat64
	err = tx.QueryRowContext(ctx, r.rebind(`
		SELECT lat, lon FROM observations
		WHERE network_id = ? AND timestamp_ms >= ?
		  AND lat BETWEEN -90 AND 90 AND lon BETWEEN -180 AND 180
		  AND NOT (lat = 0 AND lon = 0)
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`), id, domain.MinValidTimestampMs).Scan(&lastLat, &lastLon)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO networks (
			network_id, ssid, radio_type, first_seen_ms, last_seen_ms,
			observation_count, best_signal_dbm, last_lat, last_lon
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (network_id) DO UPDATE SET
			ssid = excluded.ssid,
			radio_type = excluded.radio_type,
			first_seen_ms = excluded.first_seen_ms,
			last_seen_ms = excluded.last_seen_ms,
			observation_count = excluded.observation_count,
			best_signal_dbm = excluded.best_signal_dbm,
			last_lat = excluded.last_lat,
			last_lon = excluded.last_lon
	`), id, ssid, radio, first.Int64, last.Int64, count, best, lastLat, lastLon)
	return err
}

// ListObservations returns a network's sightings in [sinceMs, untilMs],
// ordered by time. untilMs <= 0 means no upper bound.
func (r *SQLRepository) ListObservations(ctx context.Context, networkID string, sinceMs, untilMs int64) ([]domain.Observation, error) {
	id := domain.NormalizeNetworkID(networkID)
	if id == "" {
		return nil, fmt.Errorf("%w: networkID is required", ErrInvalidInput)
	}

	query := `
		SELECT network_id, lat, lon, timestamp_ms, signal_dbm, radio_type, ssid
		FROM observations
		WHERE network_id = ? AND timestamp_ms >= ?
	`
	args := []any{id, sinceMs}
	if untilMs > 0 {
		query += " AND timestamp_ms <= ?"
		args = append(args, untilMs)
	}
	query += " ORDER BY timestamp_ms, lat, lon"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		var o domain.Observation
		var signal sql.NullFloat64
		var radio string
		if err := rows.Scan(&o.NetworkID, &o.Lat, &o.Lon, &o.TimestampMs, &signal, &radio, &o.SSID); err != nil {
			return nil, err
		}
		o.SignalDbm = floatPtr(signal)
		o.RadioType = domain.RadioType(radio)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListNetworkIDs pages through network ids in order, starting after afterID.
func (r *SQLRepository) ListNetworkIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT network_id FROM networks
		WHERE network_id > ?
		ORDER BY network_id
		LIMIT ?
	`), afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetNetwork retrieves a network summary.
func (r *SQLRepository) GetNetwork(ctx context.Context, networkID string) (*domain.Network, error) {
	var n domain.Network
	var radio string
	var best, lat, lon sql.NullFloat64

	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT network_id, ssid, radio_type, first_seen_ms, last_seen_ms,
		       observation_count, best_signal_dbm, last_lat, last_lon
		FROM networks
		WHERE network_id = ?
	`), domain.NormalizeNetworkID(networkID)).Scan(
		&n.NetworkID, &n.SSID, &radio, &n.FirstSeenMs, &n.LastSeenMs,
		&n.ObservationCount, &best, &lat, &lon,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	n.RadioType = domain.RadioType(radio)
	n.BestSignalDbm = floatPtr(best)
	n.LastLat = floatPtr(lat)
	n.LastLon = floatPtr(lon)
	return &n, nil
}
