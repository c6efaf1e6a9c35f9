package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

// circuitBreaker tracks failures for one external dependency. State is
// process-local and resets on restart.
type circuitBreaker struct {
	name   string
	config domain.CircuitBreakerConfig
	logger *slog.Logger

	mu               sync.Mutex
	state            ports.CircuitBreakerState
	failureCount     int64
	lastFailure      time.Time
	totalRequests    int64
	requestsRejected int64
	halfOpenInFlight bool
}

func New(name string, config domain.CircuitBreakerConfig, logger *slog.Logger) ports.CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}

	return &circuitBreaker{
		name:   name,
		config: config,
		logger: logger.With("component", "circuit-breaker", "name", name),
		state:  ports.StateClosed,
	}
}

func (cb *circuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allowRequest() {
		return domain.NewCircuitOpenError(cb.name)
	}

	callCtx := ctx
	if cb.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cb.config.CallTimeout)
		defer cancel()
	}

	// A panicking call counts as a failure; without this a half-open
	// trial that panics would leave the breaker rejecting forever.
	defer func() {
		if r := recover(); r != nil {
			cb.onFailure()
			panic(r)
		}
	}()

	if err := fn(callCtx); err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *circuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	if cb.state == ports.StateOpen {
		if time.Since(cb.lastFailure) >= cb.config.ResetTimeout {
			cb.setState(ports.StateHalfOpen)
		} else {
			cb.requestsRejected++
			return false
		}
	}

	if cb.state == ports.StateHalfOpen {
		// One trial call at a time while half-open.
		if cb.halfOpenInFlight {
			cb.requestsRejected++
			return false
		}
		cb.halfOpenInFlight = true
	}

	return true
}

func (cb *circuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == ports.StateHalfOpen {
		cb.halfOpenInFlight = false
		cb.failureCount = 0
		cb.setState(ports.StateClosed)
		return
	}
	cb.failureCount = 0
}

func (cb *circuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = time.Now()

	switch cb.state {
	case ports.StateClosed:
		cb.failureCount++
		if cb.failureCount >= int64(cb.config.FailureThreshold) {
			cb.setState(ports.StateOpen)
		}
	case ports.StateHalfOpen:
		cb.halfOpenInFlight = false
		cb.setState(ports.StateOpen)
	}
}

func (cb *circuitBreaker) setState(newState ports.CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	cb.logger.Info("circuit breaker state change",
		"from", cb.state.String(),
		"to", newState.String(),
		"failure_count", cb.failureCount)
	cb.state = newState
}

func (cb *circuitBreaker) State() ports.CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *circuitBreaker) Metrics() ports.CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return ports.CircuitBreakerMetrics{
		State:            cb.state,
		FailureCount:     cb.failureCount,
		LastFailure:      cb.lastFailure,
		TotalRequests:    cb.totalRequests,
		RequestsRejected: cb.requestsRejected,
	}
}

func (cb *circuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.logger.Info("circuit breaker reset")
	cb.failureCount = 0
	cb.halfOpenInFlight = false
	cb.setState(ports.StateClosed)
}
