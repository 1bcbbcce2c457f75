package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU in front of Redis.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetScore retrieves a cached score record.
	// Returns nil, nil if not cached.
	GetScore(ctx context.Context, networkID string) (*ScoreRecord, error)

	// SetScore caches a score record for detail reads.
	SetScore(ctx context.Context, rec *ScoreRecord, ttl time.Duration) error

	// InvalidateScore drops a cached score record after recompute or tag change.
	InvalidateScore(ctx context.Context, networkID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" koanf:"type" validate:"oneof=memory redis"`

	// Local LRU cache settings
	LocalMaxSize int           `json:"localMaxSize" koanf:"local_max_size" validate:"gte=0"`
	LocalTTL     time.Duration `json:"localTtl" koanf:"local_ttl"`

	// Redis settings
	RedisAddr     string `json:"redisAddr" koanf:"redis_addr"`
	RedisPassword string `json:"-" koanf:"redis_password"`
	RedisDB       int    `json:"redisDb" koanf:"redis_db" validate:"gte=0"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase" koanf:"enable_two_phase"` // If true, check local first, then Redis

	// Circuit breaker around the Redis tier of the two-phase cache
	BreakerMaxFailures uint32        `json:"breakerMaxFailures" koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `json:"breakerTimeout" koanf:"breaker_timeout"`

	// ScoreTTL bounds how long a cached score record is served.
	ScoreTTL time.Duration `json:"scoreTtl" koanf:"score_ttl"`
}
