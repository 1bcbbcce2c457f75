// Package config loads radiowatch configuration with koanf.
//
// Precedence, lowest to highest:
//
//  1. built-in defaults: domain.DefaultConfig, or domain.ProConfig when
//     RADIOWATCH_TIER=pro
//  2. a YAML file: $RADIOWATCH_CONFIG, else ./config.yaml when present
//  3. environment variables prefixed RADIOWATCH_, with a double
//     underscore separating sections, e.g. RADIOWATCH_SCORING__BATCH_SIZE=200
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/validation"
)

const (
	// PathEnvVar overrides the config file location.
	PathEnvVar = "RADIOWATCH_CONFIG"

	// TierEnvVar selects the defaults profile: "community" or "pro".
	TierEnvVar = "RADIOWATCH_TIER"

	// EnvPrefix marks environment overrides.
	EnvPrefix = "RADIOWATCH_"

	TierPro = "pro"

	defaultPath = "config.yaml"
)

// Load reads configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*domain.Config, error) {
	path := os.Getenv(PathEnvVar)
	explicit := path != ""
	if !explicit {
		path = defaultPath
	}
	return load(path, explicit)
}

// LoadFile is Load with an explicit config file, which must exist.
func LoadFile(path string) (*domain.Config, error) {
	return load(path, true)
}

func load(path string, required bool) (*domain.Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(os.Getenv(TierEnvVar)), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		case required || !errors.Is(statErr, os.ErrNotExist):
			return nil, fmt.Errorf("config file %s: %w", path, statErr)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &domain.Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaults(tier string) *domain.Config {
	if strings.EqualFold(tier, TierPro) {
		return domain.ProConfig()
	}
	return domain.DefaultConfig()
}

// envKey maps RADIOWATCH_CACHE__REDIS_ADDR to cache.redis_addr.
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == "CONFIG" || key == "TIER" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

// Validate runs struct tag checks plus the rules that span fields.
func Validate(cfg *domain.Config) error {
	if err := validation.Struct(cfg); err != nil {
		return err
	}

	var errs []error
	if cfg.Repository.Driver == "sqlite" && cfg.Repository.SQLitePath == "" {
		errs = append(errs, errors.New("repository.sqlite_path is required for the sqlite driver"))
	}
	if cfg.Repository.Driver == "postgres" && cfg.Repository.PostgresHost == "" {
		errs = append(errs, errors.New("repository.postgres_host is required for the postgres driver"))
	}
	if cfg.Cache.Type == "redis" && cfg.Cache.RedisAddr == "" {
		errs = append(errs, errors.New("cache.redis_addr is required for the redis cache"))
	}
	if cfg.EventBus.Type == "nats" && cfg.EventBus.NATSUrl == "" {
		errs = append(errs, errors.New("eventbus.nats_url is required for the nats bus"))
	}
	if cfg.Scoring.Interval < 0 {
		errs = append(errs, errors.New("scoring.interval must not be negative"))
	}
	if cfg.Features.AwayThresholdMeters < cfg.Features.HomeRadiusMeters {
		errs = append(errs, errors.New("features.away_threshold_meters must be at least features.home_radius_meters"))
	}
	if strings.TrimSpace(cfg.Rules.CandidatePolicy) == "" {
		errs = append(errs, errors.New("rules.candidate_policy must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}
