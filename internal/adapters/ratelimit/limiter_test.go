package ratelimit

import (
	"testing"
	"time"

	"github.com/contentmill/conveyor/internal/domain"
)

func newTestLimiter(t *testing.T, maxRequests int, window time.Duration) (*Limiter, *time.Time) {
	t.Helper()

	l := New(domain.RateLimiterConfig{
		MaxRequests:     maxRequests,
		Window:          window,
		CleanupInterval: time.Hour,
		KeyExpiry:       time.Hour,
	}, nil)
	t.Cleanup(l.Close)

	clock := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Allow("source-a") {
			t.Fatalf("request %d unexpectedly denied", i)
		}
	}
	if l.Allow("source-a") {
		t.Error("expected denial past the limit")
	}
}

func TestWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(t, 2, time.Minute)

	if !l.Allow("source-a") || !l.Allow("source-a") {
		t.Fatal("expected first two requests admitted")
	}
	if l.Allow("source-a") {
		t.Fatal("expected third request denied")
	}

	// Move past the window; the old timestamps no longer count.
	*clock = clock.Add(61 * time.Second)
	if !l.Allow("source-a") {
		t.Error("expected admission after the window slid")
	}
}

func TestDeniedRequestsNotRecorded(t *testing.T) {
	l, clock := newTestLimiter(t, 2, time.Minute)

	l.Allow("source-a")
	*clock = clock.Add(30 * time.Second)
	l.Allow("source-a")
	for i := 0; i < 10; i++ {
		l.Allow("source-a")
	}

	// Only the two admitted timestamps exist, so once the first expires
	// capacity opens up again.
	*clock = clock.Add(31 * time.Second)
	if !l.Allow("source-a") {
		t.Error("denied requests must not extend the window")
	}
}

func TestIdentifiersIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)

	if !l.Allow("source-a") {
		t.Fatal("expected admission for source-a")
	}
	if !l.Allow("source-b") {
		t.Error("source-b must not be affected by source-a")
	}
	if l.Allow("source-a") {
		t.Error("expected denial for exhausted source-a")
	}
}

func TestRemaining(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute)

	if got := l.Remaining("source-a"); got != 3 {
		t.Errorf("expected 3 for unseen id, got %d", got)
	}

	l.Allow("source-a")
	l.Allow("source-a")
	if got := l.Remaining("source-a"); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}

	// Remaining must not consume capacity.
	if got := l.Remaining("source-a"); got != 1 {
		t.Errorf("expected 1 on repeat, got %d", got)
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)

	l.Allow("source-a")
	if l.Allow("source-a") {
		t.Fatal("expected denial before reset")
	}

	l.Reset("source-a")
	if !l.Allow("source-a") {
		t.Error("expected admission after reset")
	}
}

func TestCleanupDropsIdleIdentifiers(t *testing.T) {
	l, clock := newTestLimiter(t, 5, time.Minute)

	l.Allow("idle")
	l.Allow("busy")

	*clock = clock.Add(2 * time.Hour)
	l.Allow("busy")
	l.performCleanup()

	l.mu.Lock()
	_, idleKept := l.windows["idle"]
	_, busyKept := l.windows["busy"]
	l.mu.Unlock()

	if idleKept {
		t.Error("expected idle identifier to be dropped")
	}
	if !busyKept {
		t.Error("expected active identifier to survive cleanup")
	}
}
