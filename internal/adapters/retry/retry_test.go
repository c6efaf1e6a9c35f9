package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/contentmill/conveyor/internal/domain"
)

func fastStrategy() domain.RetryStrategy {
	return domain.RetryStrategy{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastStrategy(), func(ctx context.Context) error {
		calls++
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	retries := 0

	err := Do(context.Background(), fastStrategy(), func(ctx context.Context) error {
		calls++
		return boom
	}, func(attempt int, err error) {
		retries++
	})

	if !errors.Is(err, boom) {
		t.Errorf("expected the last error back, got %v", err)
	}
	// Initial attempt plus MaxRetries retries.
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	if retries != 3 {
		t.Errorf("expected 3 retry notifications, got %d", retries)
	}
}

func TestDoRecoversMidway(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastStrategy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strategy := fastStrategy()
	strategy.InitialDelay = time.Minute

	err := Do(ctx, strategy, func(ctx context.Context) error {
		return errors.New("keep trying")
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation, got %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	filled := applyDefaults(domain.RetryStrategy{MaxRetries: -1})
	if filled != domain.DefaultRetryStrategy() {
		t.Errorf("expected the default strategy, got %+v", filled)
	}

	// Zero retries is a deliberate choice, not an unset field.
	noRetries := applyDefaults(domain.RetryStrategy{MaxRetries: 0})
	if noRetries.MaxRetries != 0 {
		t.Errorf("expected MaxRetries 0 preserved, got %d", noRetries.MaxRetries)
	}
	if noRetries.MaxDelay != 30*time.Second {
		t.Errorf("expected MaxDelay defaulted to 30s, got %v", noRetries.MaxDelay)
	}

	explicit := fastStrategy()
	if got := applyDefaults(explicit); got != explicit {
		t.Errorf("expected explicit strategy untouched, got %+v", got)
	}
}

func TestDelaySchedule(t *testing.T) {
	strategy := domain.DefaultRetryStrategy()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, 30 * time.Second}, // capped at MaxDelay
	}
	for _, tc := range cases {
		if got := Delay(strategy, tc.attempt); got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}
