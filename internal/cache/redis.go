package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radiowatch/radiowatch/internal/domain"
)

const keyPrefix = "radiowatch:"

// RedisCache implements domain.Cache on Redis. It is shared between
// processes and is the L2 tier of TwoPhaseCache.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisCacheFromClient(client), nil
}

// NewRedisCacheFromClient wraps an existing client without pinging it.
func NewRedisCacheFromClient(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the value under key, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores value under key with ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return c.Delete(ctx, key)
	}
	return c.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, keyPrefix+key).Err()
}

// GetScore returns a cached score record, or nil when not cached.
func (c *RedisCache) GetScore(ctx context.Context, networkID string) (*domain.ScoreRecord, error) {
	return getScore(ctx, c, networkID)
}

// SetScore caches a score record.
func (c *RedisCache) SetScore(ctx context.Context, rec *domain.ScoreRecord, ttl time.Duration) error {
	return setScore(ctx, c, rec, ttl)
}

// InvalidateScore drops a cached score record.
func (c *RedisCache) InvalidateScore(ctx context.Context, networkID string) error {
	return c.Delete(ctx, scoreKey(networkID))
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ domain.Cache = (*RedisCache)(nil)
