package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/contentmill/conveyor/internal/domain"
)

// window holds one identifier's request timestamps inside the trailing
// window, pruned lazily on each check.
type window struct {
	timestamps   []time.Time
	lastActivity time.Time
}

// Limiter is a sliding-window rate limiter keyed by caller identifier.
// State is process-local; each instance tracks its own counts.
type Limiter struct {
	config domain.RateLimiterConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	done chan struct{}
}

func New(config domain.RateLimiterConfig, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 100
	}
	if config.Window <= 0 {
		config.Window = 60 * time.Second
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.KeyExpiry <= 0 {
		config.KeyExpiry = 10 * time.Minute
	}

	l := &Limiter{
		config:  config,
		logger:  logger.With("component", "rate-limiter"),
		now:     time.Now,
		windows: make(map[string]*window),
		done:    make(chan struct{}),
	}

	go l.cleanupExpiredKeys()

	return l
}

// Allow prunes expired timestamps for id, then admits and records the
// request only if the window has capacity. Denied requests are not
// recorded.
func (l *Limiter) Allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.getWindow(id)
	w.timestamps = prune(w.timestamps, now.Add(-l.config.Window))
	w.lastActivity = now

	if len(w.timestamps) >= l.config.MaxRequests {
		l.logger.Debug("request denied", "id", id, "in_window", len(w.timestamps))
		return false
	}

	w.timestamps = append(w.timestamps, now)
	return true
}

// Remaining reports capacity left for id without mutating state.
func (l *Limiter) Remaining(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[id]
	if !ok {
		return l.config.MaxRequests
	}

	cutoff := l.now().Add(-l.config.Window)
	inWindow := 0
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			inWindow++
		}
	}

	remaining := l.config.MaxRequests - inWindow
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *Limiter) Reset(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, id)
}

func (l *Limiter) Close() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

func (l *Limiter) getWindow(id string) *window {
	w, ok := l.windows[id]
	if !ok {
		w = &window{}
		l.windows[id] = w
	}
	return w
}

func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	// Timestamps are appended in order; find the first one still inside
	// the window.
	idx := 0
	for idx < len(timestamps) && !timestamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return timestamps
	}
	return append(timestamps[:0], timestamps[idx:]...)
}

func (l *Limiter) cleanupExpiredKeys() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.performCleanup()
		}
	}
}

func (l *Limiter) performCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	deleted := 0
	for id, w := range l.windows {
		if now.Sub(w.lastActivity) > l.config.KeyExpiry {
			delete(l.windows, id)
			deleted++
		}
	}
	if deleted > 0 {
		l.logger.Debug("cleaned up idle identifiers", "deleted", deleted)
	}
}
