package ports

import (
	"context"
	"time"
)

type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type CircuitBreakerMetrics struct {
	State            CircuitBreakerState `json:"state"`
	FailureCount     int64               `json:"failure_count"`
	LastFailure      time.Time           `json:"last_failure"`
	TotalRequests    int64               `json:"total_requests"`
	RequestsRejected int64               `json:"requests_rejected"`
}

// CircuitBreaker guards one external dependency. One instance per
// dependency; never shared across unrelated services.
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func(context.Context) error) error
	State() CircuitBreakerState
	Metrics() CircuitBreakerMetrics
	Reset()
}

// CircuitBreakerProvider keeps one named breaker per guarded dependency.
type CircuitBreakerProvider interface {
	Get(name string) CircuitBreaker
	AllMetrics() map[string]CircuitBreakerMetrics
}
