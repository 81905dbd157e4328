package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/layer-3/paygate/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAYGATE_NETWORK", "solana:devnet")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "solana:devnet", cfg.Network)
	assert.False(t, cfg.RateLimitEnabled)
	assert.Equal(t, time.Minute, cfg.RateLimitCleanupInterval)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, EventsMemory, cfg.Events)
	assert.Equal(t, 30*time.Second, cfg.FacilitatorTimeout)
	assert.Equal(t, service.PolicyBurn, cfg.FailurePolicy)
	assert.Equal(t, 10*time.Minute, cfg.AccessPassTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.NeedsRedis())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAYGATE_NETWORK", "eip155:8453")
	t.Setenv("PAYGATE_LISTEN_ADDR", ":8081")
	t.Setenv("PAYGATE_RATE_LIMIT_ENABLED", "true")
	t.Setenv("PAYGATE_RATE_LIMIT_CLEANUP_INTERVAL", "15s")
	t.Setenv("PAYGATE_STORE", "redis")
	t.Setenv("FACILITATOR_TIMEOUT", "5s")
	t.Setenv("PAYGATE_SETTLEMENT_FAILURE_POLICY", "release")
	t.Setenv("PAYGATE_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.ListenAddr)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, 15*time.Second, cfg.RateLimitCleanupInterval)
	assert.Equal(t, 5*time.Second, cfg.FacilitatorTimeout)
	assert.Equal(t, service.PolicyRelease, cfg.FailurePolicy)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.NeedsRedis())
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing network":      {"PAYGATE_NETWORK": ""},
		"bad bool":             {"PAYGATE_RATE_LIMIT_ENABLED": "maybe"},
		"bad duration":         {"FACILITATOR_TIMEOUT": "soon"},
		"negative duration":    {"PAYGATE_ACCESS_PASS_TTL": "-1m"},
		"unknown policy":       {"PAYGATE_SETTLEMENT_FAILURE_POLICY": "refund"},
		"unknown store":        {"PAYGATE_STORE": "bolt"},
		"postgres without dsn": {"PAYGATE_STORE": "postgres", "DATABASE_URL": ""},
		"unknown events":       {"PAYGATE_EVENTS": "kafka"},
		"unknown log level":    {"PAYGATE_LOG_LEVEL": "loud"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("PAYGATE_NETWORK", "solana:devnet")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
