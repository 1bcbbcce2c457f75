package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiowatch/radiowatch/internal/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(PathEnvVar, "")

	cfg, err := Load()
	require.NoError(t, err)

	want := domain.DefaultConfig()
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.Repository.Driver, cfg.Repository.Driver)
	assert.Equal(t, want.Cache.ScoreTTL, cfg.Cache.ScoreTTL)
	assert.Equal(t, want.Rules.Weights, cfg.Rules.Weights)
	assert.Equal(t, want.Features, cfg.Features)
	assert.Equal(t, domain.DefaultCandidatePolicy, cfg.Rules.CandidatePolicy)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
scoring:
  batch_size: 100
  interval: 5m
rules:
  weights:
    home_and_away: 50
cache:
  local_ttl: 30s
`)
	t.Setenv(PathEnvVar, path)
	t.Setenv("RADIOWATCH_SCORING__WORKERS", "2")
	t.Setenv("RADIOWATCH_LOGGING__LEVEL", "debug")
	t.Setenv("RADIOWATCH_SERVER__PORT", "9191")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port, "env wins over file")
	assert.Equal(t, 100, cfg.Scoring.BatchSize)
	assert.Equal(t, 2, cfg.Scoring.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Scoring.Interval)
	assert.Equal(t, 30*time.Second, cfg.Cache.LocalTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 50.0, cfg.Rules.Weights.HomeAndAway)
	assert.Equal(t, 25.0, cfg.Rules.Weights.ExcessiveMovement, "unset keys keep defaults")
}

func TestLoadErrors(t *testing.T) {
	t.Run("explicit file missing", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "server: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("tag validation", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "logging:\n  level: chatty\n"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("redis without address", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "cache:\n  type: redis\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache.redis_addr")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.Config)
		wantErr string
	}{
		{"defaults", func(*domain.Config) {}, ""},
		{"pro", func(c *domain.Config) { *c = *domain.ProConfig() }, ""},
		{"postgres without host", func(c *domain.Config) {
			c.Repository.Driver = "postgres"
		}, "postgres_host"},
		{"nats without url", func(c *domain.Config) {
			c.EventBus.Type = "nats"
		}, "nats_url"},
		{"away inside home", func(c *domain.Config) {
			c.Features.AwayThresholdMeters = 50
		}, "away_threshold_meters"},
		{"empty policy", func(c *domain.Config) {
			c.Rules.CandidatePolicy = "  "
		}, "candidate_policy"},
		{"negative weight", func(c *domain.Config) {
			c.Rules.Weights.SpeedLowWeight = -1
		}, "speedLowWeight"},
		{"zero workers", func(c *domain.Config) {
			c.Scoring.Workers = 0
		}, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "cache.redis_addr", envKey("RADIOWATCH_CACHE__REDIS_ADDR"))
	assert.Equal(t, "rules.weights.home_and_away", envKey("RADIOWATCH_RULES__WEIGHTS__HOME_AND_AWAY"))
	assert.Equal(t, "", envKey("RADIOWATCH_CONFIG"))
	assert.Equal(t, "", envKey("RADIOWATCH_TIER"))
}

func TestLoadProTier(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(PathEnvVar, "")
	t.Setenv(TierEnvVar, "pro")
	t.Setenv("RADIOWATCH_CACHE__REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.True(t, cfg.Cache.EnableTwoPhase)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 15*time.Minute, cfg.Scoring.Interval)
}
