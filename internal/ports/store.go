package ports

import (
	"context"

	"github.com/contentmill/conveyor/internal/domain"
)

// RunFilter narrows CountRuns. Zero values match everything.
type RunFilter struct {
	WorkflowID string
	Status     domain.RunStatus
}

// RunStore is the durable record of workflows and workflow runs, keyed by id.
type RunStore interface {
	CreateWorkflow(ctx context.Context, workflow *domain.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error)

	CreateRun(ctx context.Context, run *domain.WorkflowRun) error
	GetRun(ctx context.Context, id string) (*domain.WorkflowRun, error)
	UpdateRun(ctx context.Context, run *domain.WorkflowRun) error
	ListRuns(ctx context.Context, workflowID string) ([]*domain.WorkflowRun, error)
	CountRuns(ctx context.Context, filter RunFilter) (int, error)

	Close() error
}
