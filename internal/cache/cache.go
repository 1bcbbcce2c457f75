package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/metrics"
)

const (
	defaultLocalTTL           = 5 * time.Minute
	defaultBreakerMaxFailures = 5
	defaultBreakerTimeout     = 30 * time.Second
	breakerName               = "redis-cache"
)

// New creates a cache from configuration.
// "memory" returns an LRU cache. "redis" returns a Redis cache, or a
// TwoPhaseCache (LRU in front of Redis) when two-phase is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// remoteTier is the L2 surface TwoPhaseCache needs.
type remoteTier interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// TwoPhaseCache reads L1 (local LRU) first and falls back to L2 (Redis).
// L2 calls pass through a circuit breaker; while it is open the cache
// serves from L1 alone and L2 failures surface as misses.
type TwoPhaseCache struct {
	local   *LRUCache
	remote  remoteTier
	breaker *gobreaker.CircuitBreaker[[]byte]
	l1TTL   time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg), nil
}

func newTwoPhase(local *LRUCache, remote remoteTier, cfg domain.CacheConfig) *TwoPhaseCache {
	l1TTL := cfg.LocalTTL
	if l1TTL <= 0 {
		l1TTL = defaultLocalTTL
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("cache circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &TwoPhaseCache{
		local:   local,
		remote:  remote,
		breaker: breaker,
		l1TTL:   l1TTL,
	}
}

// guard runs an L2 call through the breaker and records the outcome.
func (c *TwoPhaseCache) guard(fn func() ([]byte, error)) ([]byte, error) {
	val, err := c.breaker.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
	case err != nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	}
	return val, err
}

// Get retrieves from L1 first, then L2. Populates L1 on an L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		metrics.RecordCacheLookup("local", true)
		return val, nil
	}
	metrics.RecordCacheLookup("local", false)

	val, err = c.guard(func() ([]byte, error) {
		return c.remote.Get(ctx, key)
	})
	if err != nil {
		slog.Debug("remote cache read skipped", "key", key, "error", err)
		return nil, nil
	}
	metrics.RecordCacheLookup("remote", val != nil)
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes L1 with the shorter of ttl and the L1 TTL, then L2 with ttl.
// An L2 failure is logged; the L1 write stands.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}

	if _, err := c.guard(func() ([]byte, error) {
		return nil, c.remote.Set(ctx, key, value, ttl)
	}); err != nil {
		slog.Warn("remote cache write failed", "key", key, "error", err)
	}
	return nil
}

// Delete removes from L1 and L2. An L2 delete that cannot run is reported
// so callers know a stale remote entry may survive until its TTL.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	_, err := c.guard(func() ([]byte, error) {
		return nil, c.remote.Delete(ctx, key)
	})
	if err != nil {
		return fmt.Errorf("remote cache delete: %w", err)
	}
	return nil
}

// GetScore returns a cached score record, or nil when not cached.
func (c *TwoPhaseCache) GetScore(ctx context.Context, networkID string) (*domain.ScoreRecord, error) {
	return getScore(ctx, c, networkID)
}

// SetScore caches a score record in both tiers.
func (c *TwoPhaseCache) SetScore(ctx context.Context, rec *domain.ScoreRecord, ttl time.Duration) error {
	return setScore(ctx, c, rec, ttl)
}

// InvalidateScore drops a cached score record from both tiers.
func (c *TwoPhaseCache) InvalidateScore(ctx context.Context, networkID string) error {
	return c.Delete(ctx, scoreKey(networkID))
}

// Ping checks both tiers.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both tiers.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}

// BreakerState reports the L2 circuit breaker state.
func (c *TwoPhaseCache) BreakerState() gobreaker.State {
	return c.breaker.State()
}

var _ domain.Cache = (*TwoPhaseCache)(nil)
