package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/radiowatch/radiowatch/internal/domain"
)

// homeRowID is the fixed key of the single home_location row.
const homeRowID = 1

// GetHomeLocation returns the configured home location.
func (r *SQLRepository) GetHomeLocation(ctx context.Context) (*domain.HomeLocation, error) {
	var h domain.HomeLocation
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT lat, lon, radius_m, updated_at FROM home_location WHERE id = ?
	`), homeRowID).Scan(&h.Lat, &h.Lon, &h.RadiusM, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// SetHomeLocation replaces the home location.
func (r *SQLRepository) SetHomeLocation(ctx context.Context, home *domain.HomeLocation) error {
	if home == nil || !domain.ValidCoordinates(home.Lat, home.Lon) {
		return fmt.Errorf("%w: home location needs valid coordinates", ErrInvalidInput)
	}
	if home.RadiusM < 0 {
		return fmt.Errorf("%w: radius must not be negative", ErrInvalidInput)
	}
	if home.UpdatedAt.IsZero() {
		home.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO home_location (id, lat, lon, radius_m, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			radius_m = excluded.radius_m,
			updated_at = excluded.updated_at
	`), homeRowID, home.Lat, home.Lon, home.RadiusM, home.UpdatedAt)
	return err
}

// ClearHomeLocation removes the home location. Clearing an unset home is a no-op.
func (r *SQLRepository) ClearHomeLocation(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM home_location WHERE id = ?`), homeRowID)
	return err
}

// GetModelConfig returns the trained model stored under modelType.
func (r *SQLRepository) GetModelConfig(ctx context.Context, modelType string) (*domain.ModelConfig, error) {
	var (
		cfg          domain.ModelConfig
		coefficients string
		featureNames string
	)
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT model_type, coefficients, intercept, feature_names, version, trained_at
		FROM ml_models
		WHERE model_type = ?
	`), modelType).Scan(&cfg.ModelType, &coefficients, &cfg.Intercept, &featureNames, &cfg.Version, &cfg.TrainedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(coefficients), &cfg.Coefficients); err != nil {
		return nil, fmt.Errorf("decode coefficients: %w", err)
	}
	if err := json.Unmarshal([]byte(featureNames), &cfg.FeatureNames); err != nil {
		return nil, fmt.Errorf("decode feature names: %w", err)
	}
	return &cfg, nil
}

// SaveModelConfig inserts or replaces a trained model.
func (r *SQLRepository) SaveModelConfig(ctx context.Context, cfg *domain.ModelConfig) error {
	if cfg == nil || cfg.ModelType == "" {
		return fmt.Errorf("%w: model type is required", ErrInvalidInput)
	}

	coefficients, err := json.Marshal(nonNilFloats(cfg.Coefficients))
	if err != nil {
		return fmt.Errorf("encode coefficients: %w", err)
	}
	featureNames, err := json.Marshal(nonNilStrings(cfg.FeatureNames))
	if err != nil {
		return fmt.Errorf("encode feature names: %w", err)
	}
	if cfg.TrainedAt.IsZero() {
		cfg.TrainedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO ml_models (model_type, coefficients, intercept, feature_names, version, trained_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (model_type) DO UPDATE SET
			coefficients = excluded.coefficients,
			intercept = excluded.intercept,
			feature_names = excluded.feature_names,
			version = excluded.version,
			trained_at = excluded.trained_at,
			updated_at = excluded.updated_at
	`), cfg.ModelType, string(coefficients), cfg.Intercept, string(featureNames), cfg.Version, cfg.TrainedAt, time.Now().UTC())
	return err
}

func nonNilFloats(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
