package ports

import (
	"context"

	"github.com/contentmill/conveyor/internal/domain"
)

// NextJob describes the follow-up stage job a handler wants enqueued once
// its status transition has been recorded.
type NextJob struct {
	Queue   string
	JobID   string
	Payload []byte
}

// StageResult is what a stage handler produces for one job: the status the
// run should transition to, the data written into the run's stage snapshot,
// and optionally the next stage's job.
type StageResult struct {
	Status domain.RunStatus
	Data   map[string]interface{}
	Next   *NextJob
}

// StageContext carries the resilience plumbing a handler uses around its
// outbound calls. Handler-level backoff and queue-level retry are
// independent layers.
type StageContext struct {
	Run     *domain.WorkflowRun
	Breaker CircuitBreaker
	Limiter RateLimiter
	Retry   domain.RetryStrategy
}

// StageHandler consumes one queue's typed payloads. Implementations are
// external collaborators; the worker harness owns claim lifecycle and the
// status transition.
type StageHandler interface {
	Queue() string
	Handle(ctx context.Context, job *domain.Job, sc *StageContext) (*StageResult, error)
}
