package domain

import (
	"time"
)

// WorkflowConfig is the immutable per-workflow configuration, owned by the
// Workflow entity and read-only to the engine.
type WorkflowConfig struct {
	Scraping   ScrapingConfig    `json:"scraping" toml:"scraping"`
	AI         AIConfig          `json:"ai" toml:"ai"`
	Publishing *PublishingConfig `json:"publishing,omitempty" toml:"publishing,omitempty"`
}

type ScrapingConfig struct {
	Platform      string `json:"platform" toml:"platform"`
	TargetCount   int    `json:"target_count" toml:"target_count"`
	MinEngagement int    `json:"min_engagement" toml:"min_engagement"`
	Timeframe     string `json:"timeframe" toml:"timeframe"`
}

type AIConfig struct {
	IdeaCount      int     `json:"idea_count" toml:"idea_count"`
	VariationCount int     `json:"variation_count" toml:"variation_count"`
	Model          string  `json:"model" toml:"model"`
	Temperature    float64 `json:"temperature" toml:"temperature"`
}

type PublishingConfig struct {
	AutoPublish  bool       `json:"auto_publish" toml:"auto_publish"`
	ScheduleTime *time.Time `json:"schedule_time,omitempty" toml:"schedule_time,omitempty"`
	Platforms    []string   `json:"platforms" toml:"platforms"`
}

// Config is the process-level configuration tree loaded at bootstrap.
type Config struct {
	DataDir string `json:"data_dir" toml:"data_dir"`

	Engine         EngineConfig         `json:"engine" toml:"engine"`
	Queue          QueueConfig          `json:"queue" toml:"queue"`
	DLQ            DLQConfig            `json:"dlq" toml:"dlq"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" toml:"circuit_breaker"`
	RateLimiter    RateLimiterConfig    `json:"rate_limiter" toml:"rate_limiter"`
	Retry          RetryStrategy        `json:"retry" toml:"retry"`
	API            APIConfig            `json:"api" toml:"api"`
}

type EngineConfig struct {
	WorkerCount     int           `json:"worker_count" toml:"worker_count"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" toml:"shutdown_timeout"`
}

type QueueConfig struct {
	MaxAttempts  int           `json:"max_attempts" toml:"max_attempts"`
	PollInterval time.Duration `json:"poll_interval" toml:"poll_interval"`
}

type DLQConfig struct {
	RetentionDays   int    `json:"retention_days" toml:"retention_days"`
	CleanupSchedule string `json:"cleanup_schedule" toml:"cleanup_schedule"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" toml:"failure_threshold"`
	ResetTimeout     time.Duration `json:"reset_timeout" toml:"reset_timeout"`
	CallTimeout      time.Duration `json:"call_timeout" toml:"call_timeout"`
}

type RateLimiterConfig struct {
	MaxRequests     int           `json:"max_requests" toml:"max_requests"`
	Window          time.Duration `json:"window" toml:"window"`
	CleanupInterval time.Duration `json:"cleanup_interval" toml:"cleanup_interval"`
	KeyExpiry       time.Duration `json:"key_expiry" toml:"key_expiry"`
}

type RetryStrategy struct {
	MaxRetries    int           `json:"max_retries" toml:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay" toml:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay" toml:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor" toml:"backoff_factor"`
}

type APIConfig struct {
	Enabled  bool   `json:"enabled" toml:"enabled"`
	BindAddr string `json:"bind_addr" toml:"bind_addr"`
}
