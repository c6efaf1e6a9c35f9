package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

// breakerNames maps each queue to the external dependency its handlers
// call, so every dependency gets its own breaker instance.
var breakerNames = map[string]string{
	domain.QueueScraping:     "scraper",
	domain.QueueAIProcessing: "ai-provider",
	domain.QueuePublishing:   "publisher",
}

// QueueLookup resolves a queue by name, used to enqueue follow-up stage
// jobs.
type QueueLookup func(name string) (ports.JobQueue, bool)

// Pool consumes one queue with a fixed number of workers and dispatches
// claimed jobs to the registered stage handler. The pool owns the claim
// lifecycle and the status transition; the handler owns the stage logic.
type Pool struct {
	queue    ports.JobQueue
	handler  ports.StageHandler
	engine   ports.WorkflowEngine
	lookup   QueueLookup
	breakers ports.CircuitBreakerProvider
	limiter  ports.RateLimiter
	retry    domain.RetryStrategy

	workerCount  int
	pollInterval time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(
	queue ports.JobQueue,
	handler ports.StageHandler,
	eng ports.WorkflowEngine,
	lookup QueueLookup,
	breakers ports.CircuitBreakerProvider,
	limiter ports.RateLimiter,
	retry domain.RetryStrategy,
	workerCount int,
	pollInterval time.Duration,
	logger *slog.Logger,
) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Pool{
		queue:        queue,
		handler:      handler,
		engine:       eng,
		lookup:       lookup,
		breakers:     breakers,
		limiter:      limiter,
		retry:        retry,
		workerCount:  workerCount,
		pollInterval: pollInterval,
		logger:       logger.With("component", "worker-pool", "queue", queue.Name()),
	}
}

func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return domain.ErrAlreadyStarted
	}

	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.loop(workerCtx)
	}

	p.logger.Info("worker pool started", "workers", p.workerCount)
	return nil
}

func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx)

		select {
		case <-ctx.Done():
			return
		case <-p.queue.WaitForItem(ctx):
		case <-ticker.C:
		}
	}
}

// drain claims and processes jobs until the queue is empty.
func (p *Pool) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, claimID, exists, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Error("dequeue failed", "error", err.Error())
			return
		}
		if !exists {
			return
		}

		p.process(ctx, job, claimID)
	}
}

func (p *Pool) process(ctx context.Context, job *domain.Job, claimID string) {
	runID, err := domain.PayloadRunID(job.Payload)
	if err != nil {
		p.logger.Error("job payload missing run id", "job_id", job.ID, "error", err.Error())
		p.settleFail(ctx, claimID, job.ID, "malformed payload: "+err.Error())
		return
	}

	run, err := p.engine.GetRun(ctx, runID)
	if err != nil {
		p.logger.Error("run lookup failed", "job_id", job.ID, "run_id", runID, "error", err.Error())
		p.settleFail(ctx, claimID, job.ID, "run lookup failed: "+err.Error())
		return
	}

	sc := &ports.StageContext{
		Run:     run,
		Breaker: p.breakers.Get(breakerNames[p.queue.Name()]),
		Limiter: p.limiter,
		Retry:   p.retry,
	}

	result, err := p.handler.Handle(ctx, job, sc)
	if err != nil {
		p.logger.Warn("stage handler failed",
			"job_id", job.ID, "run_id", runID, "attempt", job.Attempts+1, "error", err.Error())

		if statusErr := p.engine.UpdateRunStatus(ctx, runID, domain.RunStatusFailed, map[string]interface{}{
			"reason": "stage failed",
			"stage":  p.queue.Name(),
			"error":  err.Error(),
		}); statusErr != nil {
			p.logger.Error("failed to record run failure", "run_id", runID, "error", statusErr.Error())
		}

		p.settleFail(ctx, claimID, job.ID, err.Error())
		return
	}

	if err := p.engine.UpdateRunStatus(ctx, runID, result.Status, result.Data); err != nil {
		p.logger.Error("status update failed",
			"job_id", job.ID, "run_id", runID, "status", string(result.Status), "error", err.Error())
		p.settleFail(ctx, claimID, job.ID, "status update failed: "+err.Error())
		return
	}

	if result.Next != nil {
		if err := p.enqueueNext(ctx, runID, result.Next); err != nil {
			p.logger.Error("next-stage enqueue failed",
				"job_id", job.ID, "run_id", runID, "next_queue", result.Next.Queue, "error", err.Error())
			p.settleFail(ctx, claimID, job.ID, "next-stage enqueue failed: "+err.Error())
			return
		}
	}

	if err := p.queue.Complete(ctx, claimID); err != nil {
		// A cancelled run may have dropped the claim already.
		p.logger.Debug("claim settle skipped", "job_id", job.ID, "claim_id", claimID, "error", err.Error())
	}
}

func (p *Pool) enqueueNext(ctx context.Context, runID string, next *ports.NextJob) error {
	target, ok := p.lookup(next.Queue)
	if !ok {
		return domain.NewNotFoundError("queue", next.Queue)
	}

	err := target.Enqueue(ctx, next.JobID, next.Payload, ports.EnqueueOptions{})
	if err != nil && !domain.IsDuplicateJob(err) {
		return err
	}
	return nil
}

func (p *Pool) settleFail(ctx context.Context, claimID, jobID, reason string) {
	if err := p.queue.Fail(ctx, claimID, reason); err != nil {
		p.logger.Debug("claim fail skipped", "job_id", jobID, "claim_id", claimID, "error", err.Error())
	}
}
