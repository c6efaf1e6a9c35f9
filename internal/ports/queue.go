package ports

import (
	"context"
	"time"

	"github.com/contentmill/conveyor/internal/domain"
)

type EnqueueOptions struct {
	// MaxAttempts overrides the queue's default retry budget when positive.
	MaxAttempts int
}

// QueueStats is a point-in-time snapshot of one queue's job counts.
type QueueStats struct {
	Queue     string `json:"queue"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// JobQueue is an ordered, durable, multi-consumer job list. Enqueue is
// idempotent with respect to job id: a duplicate while the prior job is
// waiting or active surfaces domain.ErrDuplicateJob, not a failure.
type JobQueue interface {
	Name() string

	Enqueue(ctx context.Context, jobID string, payload []byte, opts EnqueueOptions) error
	Dequeue(ctx context.Context) (job *domain.Job, claimID string, exists bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, reason string) error

	Remove(ctx context.Context, jobID string) (bool, error)
	RemoveByRun(ctx context.Context, runID string) (int, error)

	WaitForItem(ctx context.Context) <-chan struct{}
	Stats(ctx context.Context) (QueueStats, error)
	Close() error
}

// DeadLetterQueue captures jobs that exhausted their retry budget.
type DeadLetterQueue interface {
	Add(ctx context.Context, item *domain.DeadLetterItem) error
	List(ctx context.Context, limit int) ([]*domain.DeadLetterItem, error)
	Count(ctx context.Context) (int, error)
	Retry(ctx context.Context, itemID string) error
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}
