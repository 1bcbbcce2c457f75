package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiowatch/radiowatch/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "key1", []byte("value1"), time.Minute))

		val, err := cache.Get(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, "value1", string(val))
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)
		require.NoError(t, cache.Delete(ctx, "key2"))

		val, _ := cache.Get(ctx, "key2")
		assert.Nil(t, val)
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return clock }

		_ = c.Set(ctx, "expiring", []byte("temp"), 10*time.Second)
		val, _ := c.Get(ctx, "expiring")
		assert.NotNil(t, val)

		clock = clock.Add(10 * time.Second)
		val, _ = c.Get(ctx, "expiring")
		assert.Nil(t, val)

		size, _ := c.Stats()
		assert.Equal(t, 0, size)
	})

	t.Run("NonPositiveTTLStoresNothing", func(t *testing.T) {
		_ = cache.Set(ctx, "zero", []byte("x"), time.Minute)
		_ = cache.Set(ctx, "zero", []byte("y"), 0)

		val, _ := cache.Get(ctx, "zero")
		assert.Nil(t, val)
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, "c", []byte("3"), time.Minute)

		// Touch 'a' so 'b' is least recently used.
		_, _ = small.Get(ctx, "a")
		_ = small.Set(ctx, "d", []byte("4"), time.Minute)

		val, _ := small.Get(ctx, "b")
		assert.Nil(t, val, "expected 'b' to be evicted")

		val, _ = small.Get(ctx, "a")
		assert.NotNil(t, val)

		size, capacity := small.Stats()
		assert.Equal(t, 3, size)
		assert.Equal(t, 3, capacity)
	})

	t.Run("DefaultCapacity", func(t *testing.T) {
		_, capacity := NewLRUCache(0).Stats()
		assert.Equal(t, defaultLocalMaxSize, capacity)
	})
}

func TestScoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10)
	ml := 72.5

	rec := &domain.ScoreRecord{
		NetworkID:      "AA:BB:CC:DD:EE:FF",
		RuleBasedScore: 40,
		RuleBasedSignals: []domain.ThreatSignal{
			{Code: domain.SignalHomeAndAway, Weight: 40, Evidence: map[string]any{"seenAtHome": true}},
		},
		MLScore:    &ml,
		MLStatus:   domain.MLStatusScored,
		FinalScore: 72.5,
		FinalLevel: domain.LevelHigh,
		Stage:      domain.StageRaw,
		Candidate:  true,
		ScoredAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, cache.SetScore(ctx, rec, time.Minute))

	got, err := cache.GetScore(ctx, "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.FinalLevel, got.FinalLevel)
	assert.Equal(t, 72.5, *got.MLScore)
	assert.True(t, rec.ScoredAt.Equal(got.ScoredAt))

	require.NoError(t, cache.InvalidateScore(ctx, rec.NetworkID))
	got, err = cache.GetScore(ctx, rec.NetworkID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// fakeRemote is an in-memory L2 whose failures can be switched on.
type fakeRemote struct {
	mu    sync.Mutex
	data  map[string][]byte
	fail  bool
	calls int
}

var errRemoteDown = errors.New("remote down")

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: make(map[string][]byte)}
}

func (f *fakeRemote) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *fakeRemote) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errRemoteDown
	}
	return f.data[key], nil
}

func (f *fakeRemote) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errRemoteDown
	}
	f.data[key] = value
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errRemoteDown
	}
	delete(f.data, key)
	return nil
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	if f.fail {
		return errRemoteDown
	}
	return nil
}

func (f *fakeRemote) Close() error { return nil }

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	cfg := domain.CacheConfig{
		LocalMaxSize:       10,
		LocalTTL:           time.Minute,
		BreakerMaxFailures: 3,
		BreakerTimeout:     time.Hour,
	}

	t.Run("L2HitPopulatesL1", func(t *testing.T) {
		remote := newFakeRemote()
		remote.data["k"] = []byte("v")
		c := newTwoPhase(NewLRUCache(10), remote, cfg)

		val, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(val))

		local, _ := c.local.Get(ctx, "k")
		assert.Equal(t, "v", string(local))
	})

	t.Run("SetWritesBothTiers", func(t *testing.T) {
		remote := newFakeRemote()
		c := newTwoPhase(NewLRUCache(10), remote, cfg)

		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))
		assert.Equal(t, "v", string(remote.data["k"]))

		local, _ := c.local.Get(ctx, "k")
		assert.Equal(t, "v", string(local))
	})

	t.Run("BreakerOpensAndServesL1", func(t *testing.T) {
		remote := newFakeRemote()
		c := newTwoPhase(NewLRUCache(10), remote, cfg)
		require.NoError(t, c.Set(ctx, "cached", []byte("v"), time.Hour))

		remote.setFailing(true)
		for i := 0; i < 3; i++ {
			val, err := c.Get(ctx, fmt.Sprintf("miss-%d", i))
			require.NoError(t, err)
			assert.Nil(t, val)
		}
		assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

		callsBefore := remote.calls
		val, err := c.Get(ctx, "miss-again")
		require.NoError(t, err)
		assert.Nil(t, val)
		assert.Equal(t, callsBefore, remote.calls, "open breaker must not reach the remote")

		val, err = c.Get(ctx, "cached")
		require.NoError(t, err)
		assert.Equal(t, "v", string(val))

		// Writes still land in L1.
		require.NoError(t, c.Set(ctx, "new", []byte("n"), time.Hour))
		val, _ = c.Get(ctx, "new")
		assert.Equal(t, "n", string(val))
	})

	t.Run("DeleteReportsRemoteFailure", func(t *testing.T) {
		remote := newFakeRemote()
		c := newTwoPhase(NewLRUCache(10), remote, cfg)
		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))

		remote.setFailing(true)
		err := c.Delete(ctx, "k")
		assert.ErrorIs(t, err, errRemoteDown)

		local, _ := c.local.Get(ctx, "k")
		assert.Nil(t, local)
	})

	t.Run("PingChecksRemote", func(t *testing.T) {
		remote := newFakeRemote()
		c := newTwoPhase(NewLRUCache(10), remote, cfg)
		assert.NoError(t, c.Ping(ctx))

		remote.setFailing(true)
		assert.Error(t, c.Ping(ctx))
	})
}

func TestNew(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
	require.NoError(t, err)
	_, ok := c.(*LRUCache)
	assert.True(t, ok)

	_, err = New(domain.CacheConfig{Type: "memcached"})
	assert.Error(t, err)
}

func TestRedisUnreachable(t *testing.T) {
	ctx := context.Background()

	t.Run("ConnectFails", func(t *testing.T) {
		_, err := NewRedisCache("127.0.0.1:1", "", 0)
		assert.Error(t, err)
	})

	t.Run("TwoPhaseFallsBackToL1", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		})
		remote := NewRedisCacheFromClient(client)
		defer remote.Close()

		c := newTwoPhase(NewLRUCache(10), remote, domain.CacheConfig{
			LocalMaxSize:       10,
			LocalTTL:           time.Minute,
			BreakerMaxFailures: 1,
			BreakerTimeout:     time.Hour,
		})

		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
		assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

		val, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(val))
	})
}
