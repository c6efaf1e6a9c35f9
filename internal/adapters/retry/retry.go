package retry

import (
	"context"
	"math"
	"time"

	"github.com/contentmill/conveyor/internal/domain"
)

// OnRetry is invoked before each retry sleep with the zero-indexed attempt
// number and the error that triggered it.
type OnRetry func(attempt int, err error)

// Do runs fn, retrying up to strategy.MaxRetries additional times with
// exponential backoff. The last error is returned once the budget is
// exhausted. The backoff sleep respects ctx.
func Do(ctx context.Context, strategy domain.RetryStrategy, fn func(context.Context) error, onRetry OnRetry) error {
	strategy = applyDefaults(strategy)

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= strategy.MaxRetries {
			return lastErr
		}

		if onRetry != nil {
			onRetry(attempt, lastErr)
		}
		if err := sleep(ctx, Delay(strategy, attempt)); err != nil {
			return err
		}
	}
}

// applyDefaults fills unset strategy fields from the default strategy.
// MaxRetries zero is a valid choice (no retries) and is kept; only a
// negative value is treated as unset.
func applyDefaults(strategy domain.RetryStrategy) domain.RetryStrategy {
	defaults := domain.DefaultRetryStrategy()
	if strategy.MaxRetries < 0 {
		strategy.MaxRetries = defaults.MaxRetries
	}
	if strategy.InitialDelay <= 0 {
		strategy.InitialDelay = defaults.InitialDelay
	}
	if strategy.MaxDelay <= 0 {
		strategy.MaxDelay = defaults.MaxDelay
	}
	if strategy.BackoffFactor < 1 {
		strategy.BackoffFactor = defaults.BackoffFactor
	}
	return strategy
}

// Delay computes the backoff before retry number attempt (zero-indexed):
// min(initial * factor^attempt, max).
func Delay(strategy domain.RetryStrategy, attempt int) time.Duration {
	backoff := float64(strategy.InitialDelay) * math.Pow(strategy.BackoffFactor, float64(attempt))
	if maxDelay := float64(strategy.MaxDelay); strategy.MaxDelay > 0 && backoff > maxDelay {
		backoff = maxDelay
	}
	return time.Duration(backoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
