package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers.MaxConcurrentWorkers)
	assert.Equal(t, 0.70, cfg.Validation.ConfidenceWeight)
	assert.Equal(t, 0.30, cfg.Validation.StrengthWeight)
	assert.Equal(t, 3, cfg.Debate.Rounds)
	assert.Equal(t, "priority", cfg.Search.Mode)
	assert.Equal(t, "memory", cfg.Cache.Store)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
}

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarmflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers:
  max_concurrent_workers: 8
  signal_floor: 12
debate:
  rounds: 4
  extended_rounds: 6
  verified_only: true
search:
  mode: parallel
  priorities:
    tavily: 100
    serper: 50
cache:
  store: redis
  addr: redis.internal:6379
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers.MaxConcurrentWorkers)
	assert.Equal(t, 12, cfg.Workers.SignalFloor)
	assert.Equal(t, 4, cfg.Debate.Rounds)
	assert.True(t, cfg.Debate.VerifiedOnly)
	assert.Equal(t, "parallel", cfg.Search.Mode)
	assert.Equal(t, 100, cfg.Search.Priorities["tavily"])
	assert.Equal(t, "redis.internal:6379", cfg.Cache.Addr)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.3, cfg.Debate.StrengthStep)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarmflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debate:\n  rounds: 4\n  extended_rounds: 9\n"), 0o600))

	t.Setenv("SWARMFLOW_DEBATE_ROUNDS", "7")
	t.Setenv("SWARMFLOW_WORKERS_PER_WORKER_TIMEOUT", "45s")
	t.Setenv("SWARMFLOW_CACHE_ENABLED", "false")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Debate.Rounds)
	assert.Equal(t, 45*time.Second, cfg.Workers.PerWorkerTimeout)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/swarmflow.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Debate.Rounds)
}

func TestLoader_ValidationRejectsBadValues(t *testing.T) {
	t.Setenv("SWARMFLOW_SEARCH_MODE", "everything")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.mode")
}

func TestLoader_CustomValidator(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		if c.Workers.SignalFloor < 100 {
			return assert.AnError
		}
		return nil
	}).Load()
	assert.Error(t, err)
}

func TestConfig_ValidateRoundBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Debate.ExtendedRounds = 1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extended_rounds")
}
