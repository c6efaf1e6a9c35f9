package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/contentmill/conveyor/internal/adapters/breaker"
	"github.com/contentmill/conveyor/internal/adapters/dlq"
	"github.com/contentmill/conveyor/internal/adapters/engine"
	"github.com/contentmill/conveyor/internal/adapters/queue"
	"github.com/contentmill/conveyor/internal/adapters/ratelimit"
	"github.com/contentmill/conveyor/internal/adapters/storage"
	"github.com/contentmill/conveyor/internal/adapters/worker"
	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

// Manager wires the run store, queues, dead-letter manager, resilience
// adapters and the workflow engine over one shared database handle. The
// handle's lifecycle (open, close) belongs to the process bootstrap, not
// to the manager.
type Manager struct {
	config *domain.Config
	logger *slog.Logger

	store    *storage.Store
	queues   map[string]ports.JobQueue
	deadLtr  *dlq.Manager
	breakers *breaker.Provider
	limiter  *ratelimit.Limiter
	engine   *engine.Engine

	mu       sync.Mutex
	handlers map[string]ports.StageHandler
	pools    []*worker.Pool
	started  bool
}

func NewManager(db *badger.DB, config *domain.Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config == nil {
		config = domain.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store := storage.NewStore(db, logger)
	deadLtr := dlq.NewManager(db, logger)

	queues := make(map[string]ports.JobQueue, len(domain.QueueNames))
	for _, name := range domain.QueueNames {
		q, err := queue.NewQueue(name, db, deadLtr, config.Queue.MaxAttempts, logger)
		if err != nil {
			return nil, err
		}
		queues[name] = q
		deadLtr.RegisterQueue(q)
	}

	return &Manager{
		config:   config,
		logger:   logger,
		store:    store,
		queues:   queues,
		deadLtr:  deadLtr,
		breakers: breaker.NewProvider(config.CircuitBreaker, logger),
		limiter:  ratelimit.New(config.RateLimiter, logger),
		engine:   engine.New(store, queues, logger),
		handlers: make(map[string]ports.StageHandler),
	}, nil
}

// RegisterHandler attaches a stage handler to its queue. Must be called
// before Start.
func (m *Manager) RegisterHandler(h ports.StageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return domain.ErrAlreadyStarted
	}
	if _, ok := m.queues[h.Queue()]; !ok {
		return domain.NewNotFoundError("queue", h.Queue())
	}
	m.handlers[h.Queue()] = h
	return nil
}

// Start spins up one worker pool per registered handler.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return domain.ErrAlreadyStarted
	}

	lookup := func(name string) (ports.JobQueue, bool) {
		q, ok := m.queues[name]
		return q, ok
	}

	for name, handler := range m.handlers {
		pool := worker.NewPool(
			m.queues[name],
			handler,
			m.engine,
			lookup,
			m.breakers,
			m.limiter,
			m.config.Retry,
			m.config.Engine.WorkerCount,
			m.config.Queue.PollInterval,
			m.logger,
		)
		if err := pool.Start(ctx); err != nil {
			return err
		}
		m.pools = append(m.pools, pool)
	}

	m.started = true
	m.logger.Info("manager started", "pools", len(m.pools))
	return nil
}

// Stop halts worker pools and releases queue resources. The database
// handle stays open; the bootstrap closes it.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return domain.ErrNotStarted
	}

	for _, pool := range m.pools {
		pool.Stop()
	}
	m.pools = nil
	m.limiter.Close()
	m.deadLtr.StopSchedule()

	for _, q := range m.queues {
		if err := q.Close(); err != nil {
			m.logger.Error("queue close failed", "queue", q.Name(), "error", err.Error())
		}
	}

	m.started = false
	m.logger.Info("manager stopped")
	return nil
}

func (m *Manager) Engine() ports.WorkflowEngine {
	return m.engine
}

func (m *Manager) Store() ports.RunStore {
	return m.store
}

func (m *Manager) DeadLetters() *dlq.Manager {
	return m.deadLtr
}

func (m *Manager) Breakers() ports.CircuitBreakerProvider {
	return m.breakers
}

func (m *Manager) Limiter() ports.RateLimiter {
	return m.limiter
}

// Convenience delegation for the public facade.

func (m *Manager) ExecuteWorkflow(ctx context.Context, workflowID, topic string, brandVoice []string) (string, error) {
	return m.engine.ExecuteWorkflow(ctx, workflowID, topic, brandVoice)
}

func (m *Manager) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, data map[string]interface{}) error {
	return m.engine.UpdateRunStatus(ctx, runID, status, data)
}

func (m *Manager) CancelWorkflow(ctx context.Context, runID string) bool {
	return m.engine.CancelWorkflow(ctx, runID)
}

func (m *Manager) RetryFailedRun(ctx context.Context, runID string) error {
	return m.engine.RetryFailedRun(ctx, runID)
}

func (m *Manager) GetWorkflowMetrics(ctx context.Context, workflowID string) (*domain.WorkflowMetrics, error) {
	return m.engine.GetWorkflowMetrics(ctx, workflowID)
}

func (m *Manager) QueueStats(ctx context.Context) (*ports.QueueStatsSnapshot, error) {
	return m.engine.QueueStats(ctx)
}
