package domain

import "time"

// Config holds the complete radiowatch configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" koanf:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" koanf:"repository"`
	Cache      CacheConfig      `json:"cache" koanf:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" koanf:"eventbus"`

	// Engine settings
	Features FeatureConfig `json:"features" koanf:"features"`
	Rules    RulesConfig   `json:"rules" koanf:"rules"`
	Scoring  ScoringConfig `json:"scoring" koanf:"scoring"`

	// Observability
	Logging LoggingConfig `json:"logging" koanf:"logging"`
	Tracing TracingConfig `json:"tracing" koanf:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" koanf:"host"`
	Port         int    `json:"port" koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout  int    `json:"readTimeout" koanf:"read_timeout" validate:"gte=0"`   // seconds
	WriteTimeout int    `json:"writeTimeout" koanf:"write_timeout" validate:"gte=0"` // seconds
}

// RulesConfig holds rule weights and the candidate policy.
type RulesConfig struct {
	Weights RuleWeights `json:"weights" koanf:"weights"`

	// CandidatePolicy is a CEL expression deciding whether a scored
	// network belongs to the candidate set.
	CandidatePolicy string `json:"candidatePolicy" koanf:"candidate_policy"`
}

// DefaultCandidatePolicy excludes short-range cellular handoff noise.
const DefaultCandidatePolicy = `!(radio_type in ["LTE", "NR", "GSM"]) || distance_range_km > 5.0`

// ScoringConfig holds batch recompute settings.
type ScoringConfig struct {
	BatchSize int `json:"batchSize" koanf:"batch_size" validate:"gte=1"`
	Workers   int `json:"workers" koanf:"workers" validate:"gte=1"`

	// Interval schedules a full recompute. Zero disables the schedule.
	Interval time.Duration `json:"interval" koanf:"interval"`

	// ModelType selects which stored model config is used.
	ModelType string `json:"modelType" koanf:"model_type"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" koanf:"format" validate:"oneof=json console"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" koanf:"enabled"`
	ServiceName string `json:"serviceName" koanf:"service_name"`
}

// DefaultConfig returns the default single-node configuration:
// SQLite, in-memory cache and channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./radiowatch.db",
		},
		Cache: CacheConfig{
			Type:               "memory",
			LocalMaxSize:       10000,
			LocalTTL:           5 * time.Minute,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
			ScoreTTL:           10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Features: DefaultFeatureConfig(),
		Rules: RulesConfig{
			Weights:         DefaultRuleWeights(),
			CandidatePolicy: DefaultCandidatePolicy,
		},
		Scoring: ScoringConfig{
			BatchSize: 500,
			Workers:   8,
			ModelType: DefaultModelType,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "radiowatch",
		},
	}
}

// ProConfig returns a configuration for a multi-node deployment:
// PostgreSQL, two-phase Redis cache and NATS.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "radiowatch",
	}
	cfg.Cache.Type = "redis"
	cfg.Cache.RedisAddr = "localhost:6379"
	cfg.Cache.EnableTwoPhase = true
	cfg.Cache.LocalMaxSize = 1000
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Scoring.Interval = 15 * time.Minute
	cfg.Tracing.Enabled = true
	return cfg
}
