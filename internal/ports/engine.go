package ports

import (
	"context"
	"time"

	"github.com/contentmill/conveyor/internal/domain"
)

// QueueStatsSnapshot is the read-only payload of the status endpoint.
type QueueStatsSnapshot struct {
	Queues    map[string]QueueStats `json:"queues"`
	Timestamp time.Time             `json:"timestamp"`
}

// WorkflowEngine drives runs through the pipeline stages.
type WorkflowEngine interface {
	// ExecuteWorkflow creates a pending run for the workflow and enqueues
	// its first scrape job. Returns the new run id.
	ExecuteWorkflow(ctx context.Context, workflowID, topic string, brandVoice []string) (string, error)

	// UpdateRunStatus is the sole mutation path for run state. Stage
	// handlers call it after each unit of work completes.
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, data map[string]interface{}) error

	// CancelWorkflow force-fails the run and best-effort removes its jobs
	// from all queues. Never returns an error; failures are logged.
	CancelWorkflow(ctx context.Context, runID string) bool

	// RetryFailedRun resets a failed run to pending and re-enqueues its
	// first stage under a fresh job id.
	RetryFailedRun(ctx context.Context, runID string) error

	GetRun(ctx context.Context, runID string) (*domain.WorkflowRun, error)
	GetWorkflowMetrics(ctx context.Context, workflowID string) (*domain.WorkflowMetrics, error)
	QueueStats(ctx context.Context) (*QueueStatsSnapshot, error)
}
