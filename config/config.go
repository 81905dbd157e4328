// Package config loads server settings from the environment. A .env file
// in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/layer-3/paygate/service"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	EventsMemory = "memory"
	EventsRedis  = "redis"
)

type Config struct {
	ListenAddr string
	Network    string
	LogLevel   slog.Level

	RateLimitEnabled         bool
	RateLimitCleanupInterval time.Duration

	Store       string
	RedisURL    string
	DatabaseURL string
	Events      string

	FacilitatorURL           string
	FacilitatorAuthorization string
	FacilitatorTimeout       time.Duration
	FailurePolicy            service.FailurePolicy

	AccessPassTTL     time.Duration
	AccessPassKeyFile string
	AdminToken        string
}

// Load reads the configuration. PAYGATE_NETWORK is required.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	network := os.Getenv("PAYGATE_NETWORK")
	if network == "" {
		return nil, fmt.Errorf("PAYGATE_NETWORK environment variable is required")
	}

	cfg := &Config{
		ListenAddr:               getenv("PAYGATE_LISTEN_ADDR", ":9000"),
		Network:                  network,
		Store:                    getenv("PAYGATE_STORE", StoreMemory),
		RedisURL:                 getenv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		Events:                   getenv("PAYGATE_EVENTS", EventsMemory),
		FacilitatorURL:           getenv("FACILITATOR_URL", "http://localhost:4022"),
		FacilitatorAuthorization: os.Getenv("FACILITATOR_AUTHORIZATION"),
		AccessPassKeyFile:        os.Getenv("PAYGATE_ACCESS_PASS_KEY"),
		AdminToken:               os.Getenv("PAYGATE_ADMIN_TOKEN"),
	}

	var err error
	if cfg.RateLimitEnabled, err = getBool("PAYGATE_RATE_LIMIT_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.RateLimitCleanupInterval, err = getDuration("PAYGATE_RATE_LIMIT_CLEANUP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.FacilitatorTimeout, err = getDuration("FACILITATOR_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.AccessPassTTL, err = getDuration("PAYGATE_ACCESS_PASS_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FailurePolicy, err = service.ParseFailurePolicy(os.Getenv("PAYGATE_SETTLEMENT_FAILURE_POLICY")); err != nil {
		return nil, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("PAYGATE_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid PAYGATE_LOG_LEVEL: %w", err)
	}

	switch cfg.Store {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when PAYGATE_STORE=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown PAYGATE_STORE %q", cfg.Store)
	}

	switch cfg.Events {
	case EventsMemory, EventsRedis:
	default:
		return nil, fmt.Errorf("unknown PAYGATE_EVENTS %q", cfg.Events)
	}

	return cfg, nil
}

// NeedsRedis reports whether the store or the event transport uses Redis
func (c *Config) NeedsRedis() bool {
	return c.Store == StoreRedis || c.Events == EventsRedis
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
