package engine

import (
	"context"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"

	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

// Engine orchestrates workflow runs across the named queues. It holds no
// per-run locks: concurrency correctness for "one active job per run per
// stage" is delegated to queue-level job-id de-duplication, and same-run
// status races resolve last-write-wins.
type Engine struct {
	store  ports.RunStore
	queues map[string]ports.JobQueue
	logger *slog.Logger
}

func New(store ports.RunStore, queues map[string]ports.JobQueue, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		queues: queues,
		logger: logger.With("component", "workflow-engine"),
	}
}

// ExecuteWorkflow creates a pending run and enqueues the first scrape job
// under a deterministic id, so a second call for the same run id cannot
// produce a second outstanding scrape job.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID, topic string, brandVoice []string) (string, error) {
	workflow, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}

	run := domain.NewWorkflowRun(workflowID, topic, brandVoice)
	if err := e.store.CreateRun(ctx, run); err != nil {
		return "", err
	}

	if err := e.enqueueScrapeJob(ctx, run, &workflow.Config, domain.ScrapeJobID(run.ID)); err != nil {
		return "", err
	}

	e.logger.Info("workflow run started",
		"workflow_id", workflowID, "run_id", run.ID, "topic", topic)
	return run.ID, nil
}

func (e *Engine) enqueueScrapeJob(ctx context.Context, run *domain.WorkflowRun, config *domain.WorkflowConfig, jobID string) error {
	payload, err := json.Marshal(domain.ScrapeJobPayload{
		RunID:  run.ID,
		Topic:  run.Topic,
		Config: config.Scraping,
	})
	if err != nil {
		return domain.NewInternalError("failed to encode scrape payload", err)
	}

	queue, ok := e.queues[domain.QueueScraping]
	if !ok {
		return domain.NewInternalError("scraping queue is not wired", nil)
	}

	err = queue.Enqueue(ctx, jobID, payload, ports.EnqueueOptions{})
	if err != nil {
		if domain.IsDuplicateJob(err) {
			e.logger.Debug("scrape job already outstanding", "run_id", run.ID, "job_id", jobID)
			return nil
		}
		return err
	}
	return nil
}

// stageField maps a target status to the run snapshot field it writes.
func stageField(run *domain.WorkflowRun, status domain.RunStatus) *map[string]interface{} {
	switch status {
	case domain.RunStatusScraping:
		return &run.ScrapedData
	case domain.RunStatusAnalyzing:
		return &run.AnalysisData
	case domain.RunStatusGenerating:
		return &run.GeneratedIdeas
	case domain.RunStatusReviewing:
		return &run.FinalContent
	case domain.RunStatusPublished:
		return &run.Metrics
	case domain.RunStatusFailed:
		return &run.Errors
	}
	return nil
}

// UpdateRunStatus is the sole mutation path for run state. Transitions are
// expected to arrive in stage order; out-of-order calls are not reconciled
// and the later write wins.
func (e *Engine) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, data map[string]interface{}) error {
	if !status.Valid() {
		return domain.NewValidationError("unknown run status", map[string]interface{}{
			"status": string(status),
		})
	}

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	if !domain.CanTransition(run.Status, status) {
		e.logger.Warn("out-of-order status transition applied",
			"run_id", runID, "from", string(run.Status), "to", string(status))
	}

	if field := stageField(run, status); field != nil && data != nil {
		merged, err := domain.MergeStageData(*field, data)
		if err != nil {
			return err
		}
		*field = merged
	}

	run.Status = status
	if status.Terminal() && run.CompletedAt == nil {
		now := time.Now()
		run.CompletedAt = &now
	}

	if err := e.store.UpdateRun(ctx, run); err != nil {
		return err
	}

	e.logger.Info("run status updated", "run_id", runID, "status", string(status))
	return nil
}

// CancelWorkflow force-fails the run, then best-effort removes its jobs
// from all queues. Jobs already claimed by a worker are not interrupted;
// their settle becomes a no-op.
func (e *Engine) CancelWorkflow(ctx context.Context, runID string) bool {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		e.logger.Error("cancel failed: run lookup", "run_id", runID, "error", err.Error())
		return false
	}

	if run.Status.Terminal() {
		e.logger.Warn("cancel ignored: run already terminal",
			"run_id", runID, "status", string(run.Status))
		return false
	}

	if err := e.UpdateRunStatus(ctx, runID, domain.RunStatusFailed, map[string]interface{}{
		"reason": "cancelled",
	}); err != nil {
		e.logger.Error("cancel failed: status update", "run_id", runID, "error", err.Error())
		return false
	}

	for name, queue := range e.queues {
		removed, err := queue.RemoveByRun(ctx, runID)
		if err != nil {
			e.logger.Error("cancel: failed to remove jobs",
				"run_id", runID, "queue", name, "error", err.Error())
			continue
		}
		if removed > 0 {
			e.logger.Info("cancel: jobs removed", "run_id", runID, "queue", name, "count", removed)
		}
	}

	e.logger.Info("workflow run cancelled", "run_id", runID)
	return true
}

// RetryFailedRun resets a failed run to pending and re-enqueues its first
// stage under a fresh job id, so the original de-duplicated id cannot
// suppress the new job.
func (e *Engine) RetryFailedRun(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	if run.Status != domain.RunStatusFailed {
		return domain.NewInvalidStateError("only failed runs can be retried", map[string]interface{}{
			"run_id": runID,
			"status": string(run.Status),
		})
	}

	workflow, err := e.store.GetWorkflow(ctx, run.WorkflowID)
	if err != nil {
		return err
	}

	run.Status = domain.RunStatusPending
	run.Errors = nil
	run.CompletedAt = nil
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return err
	}

	jobID := domain.RetryScrapeJobID(run.ID, time.Now())
	if err := e.enqueueScrapeJob(ctx, run, &workflow.Config, jobID); err != nil {
		return err
	}

	e.logger.Info("failed run retried", "run_id", runID, "job_id", jobID)
	return nil
}

func (e *Engine) GetRun(ctx context.Context, runID string) (*domain.WorkflowRun, error) {
	return e.store.GetRun(ctx, runID)
}

// Queue exposes a named queue to the worker harness and the facade.
func (e *Engine) Queue(name string) (ports.JobQueue, bool) {
	queue, ok := e.queues[name]
	return queue, ok
}
