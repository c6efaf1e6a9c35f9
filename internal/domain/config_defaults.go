package domain

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func DefaultConfig() *Config {
	return &Config{
		DataDir:        "./data",
		Engine:         DefaultEngineConfig(),
		Queue:          DefaultQueueConfig(),
		DLQ:            DefaultDLQConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		RateLimiter:    DefaultRateLimiterConfig(),
		Retry:          DefaultRetryStrategy(),
		API:            DefaultAPIConfig(),
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		WorkerCount:     4,
		ShutdownTimeout: 30 * time.Second,
	}
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxAttempts:  3,
		PollInterval: 500 * time.Millisecond,
	}
}

func DefaultDLQConfig() DLQConfig {
	return DLQConfig{
		RetentionDays:   30,
		CleanupSchedule: "0 3 * * *",
	}
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		CallTimeout:      2 * time.Minute,
	}
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxRequests:     100,
		Window:          60 * time.Second,
		CleanupInterval: 5 * time.Minute,
		KeyExpiry:       10 * time.Minute,
	}
}

func DefaultRetryStrategy() RetryStrategy {
	return RetryStrategy{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

func DefaultAPIConfig() APIConfig {
	return APIConfig{
		Enabled:  true,
		BindAddr: ":8090",
	}
}

// LoadConfig reads a TOML configuration file over the defaults. A missing
// path returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, NewInternalError("failed to read config file", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, NewValidationError("failed to parse config file", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return NewValidationError("data_dir is required", nil)
	}
	if c.Engine.WorkerCount <= 0 {
		return NewValidationError("engine.worker_count must be positive", map[string]interface{}{
			"worker_count": c.Engine.WorkerCount,
		})
	}
	if c.Queue.MaxAttempts <= 0 {
		return NewValidationError("queue.max_attempts must be positive", map[string]interface{}{
			"max_attempts": c.Queue.MaxAttempts,
		})
	}
	if c.CircuitBreaker.FailureThreshold <= 0 {
		return NewValidationError("circuit_breaker.failure_threshold must be positive", nil)
	}
	if c.RateLimiter.MaxRequests <= 0 || c.RateLimiter.Window <= 0 {
		return NewValidationError("rate_limiter requires positive max_requests and window", nil)
	}
	if c.Retry.MaxRetries < 0 || c.Retry.BackoffFactor < 1 {
		return NewValidationError(fmt.Sprintf("invalid retry strategy: max_retries=%d backoff_factor=%v",
			c.Retry.MaxRetries, c.Retry.BackoffFactor), nil)
	}
	if c.DLQ.RetentionDays <= 0 {
		return NewValidationError("dlq.retention_days must be positive", nil)
	}
	return nil
}
