package domain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestDefaultRetryStrategy(t *testing.T) {
	strategy := DefaultRetryStrategy()
	assert.Equal(t, 3, strategy.MaxRetries)
	assert.Equal(t, time.Second, strategy.InitialDelay)
	assert.Equal(t, 30*time.Second, strategy.MaxDelay)
	assert.Equal(t, 2.0, strategy.BackoffFactor)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conveyor.toml")
	content := `
data_dir = "/var/lib/conveyor"

[queue]
max_attempts = 5

[dlq]
retention_days = 7
cleanup_schedule = "0 4 * * *"

[rate_limiter]
max_requests = 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/conveyor", cfg.DataDir)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 7, cfg.DLQ.RetentionDays)
	assert.Equal(t, 10, cfg.RateLimiter.MaxRequests)
	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultCircuitBreakerConfig(), cfg.CircuitBreaker)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conveyor.toml")
	content := `
[queue]
max_attempts = 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestLoadConfigRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conveyor.toml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir = [unclosed"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}
