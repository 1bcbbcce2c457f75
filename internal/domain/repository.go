// Package domain defines the core interfaces and types for radiowatch.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Observation feed
	SaveObservations(ctx context.Context, obs []Observation) error
	ListObservations(ctx context.Context, networkID string, sinceMs, untilMs int64) ([]Observation, error)
	ListNetworkIDs(ctx context.Context, afterID string, limit int) ([]string, error)
	GetNetwork(ctx context.Context, networkID string) (*Network, error)

	// Home location, single active row
	GetHomeLocation(ctx context.Context) (*HomeLocation, error)
	SetHomeLocation(ctx context.Context, home *HomeLocation) error
	ClearHomeLocation(ctx context.Context) error

	// Trained model coefficients, one active row per model type
	GetModelConfig(ctx context.Context, modelType string) (*ModelConfig, error)
	SaveModelConfig(ctx context.Context, cfg *ModelConfig) error

	// Score records, replaced whole by recompute
	SaveScoreRecord(ctx context.Context, rec *ScoreRecord) error
	GetScoreRecord(ctx context.Context, networkID string) (*ScoreRecord, error)
	ListScoreSummaries(ctx context.Context) ([]ScoreSummary, error)
	CountStaleScores(ctx context.Context, homeKey string) (int64, error)

	// Analyst tags, at most one per network
	SaveTag(ctx context.Context, tag *UserTag) error
	GetTag(ctx context.Context, networkID string) (*UserTag, error)
	DeleteTag(ctx context.Context, networkID string) error

	// Filtered reads built by the filter query builder
	QueryNetworks(ctx context.Context, q SQLQuery) ([]NetworkThreat, error)
	CountNetworks(ctx context.Context, q SQLQuery) (int64, error)
	QueryGeoPoints(ctx context.Context, q SQLQuery) ([]GeoPoint, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" koanf:"driver" validate:"oneof=sqlite postgres"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" koanf:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" koanf:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" koanf:"postgres_port" validate:"gte=0,lte=65535"`
	PostgresUser     string `json:"postgresUser" koanf:"postgres_user"`
	PostgresPassword string `json:"-" koanf:"postgres_password"`
	PostgresDB       string `json:"postgresDb" koanf:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" koanf:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" koanf:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `json:"maxIdleConns" koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" koanf:"conn_max_lifetime"`
}
