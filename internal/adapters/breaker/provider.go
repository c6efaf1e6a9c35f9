package breaker

import (
	"log/slog"
	"sync"

	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

// Provider hands out one breaker per guarded dependency, created lazily
// with the shared configuration.
type Provider struct {
	config domain.CircuitBreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]ports.CircuitBreaker
}

func NewProvider(config domain.CircuitBreakerConfig, logger *slog.Logger) *Provider {
	return &Provider{
		config:   config,
		logger:   logger,
		breakers: make(map[string]ports.CircuitBreaker),
	}
}

func (p *Provider) Get(name string) ports.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[name]; ok {
		return cb
	}
	cb := New(name, p.config, p.logger)
	p.breakers[name] = cb
	return cb
}

func (p *Provider) AllMetrics() map[string]ports.CircuitBreakerMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	metrics := make(map[string]ports.CircuitBreakerMetrics, len(p.breakers))
	for name, cb := range p.breakers {
		metrics[name] = cb.Metrics()
	}
	return metrics
}
