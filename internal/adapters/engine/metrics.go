package engine

import (
	"context"
	"time"

	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

// GetWorkflowMetrics aggregates run outcomes for one workflow. All ratios
// report zero when their denominator is empty.
func (e *Engine) GetWorkflowMetrics(ctx context.Context, workflowID string) (*domain.WorkflowMetrics, error) {
	runs, err := e.store.ListRuns(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	metrics := &domain.WorkflowMetrics{WorkflowID: workflowID}
	if len(runs) == 0 {
		return metrics, nil
	}

	var totalCompletion time.Duration
	completed := 0
	totalContent := 0
	approvedContent := 0

	for _, run := range runs {
		metrics.TotalRuns++
		switch run.Status {
		case domain.RunStatusPublished:
			metrics.SuccessfulRuns++
		case domain.RunStatusFailed:
			metrics.FailedRuns++
		}

		if run.CompletedAt != nil {
			totalCompletion += run.CompletedAt.Sub(run.StartedAt)
			completed++
		}

		if run.FinalContent != nil {
			items := contentItemCount(run.FinalContent)
			totalContent += items
			if approved(run.FinalContent) {
				approvedContent += items
			}
		}
	}

	if completed > 0 {
		metrics.AvgCompletionTime = totalCompletion / time.Duration(completed)
	}
	metrics.ContentItemsTotal = totalContent
	if totalContent > 0 {
		metrics.ApprovalRate = float64(approvedContent) / float64(totalContent)
	}
	return metrics, nil
}

func contentItemCount(finalContent map[string]interface{}) int {
	if items, ok := finalContent["items"].([]interface{}); ok {
		return len(items)
	}
	return 1
}

func approved(finalContent map[string]interface{}) bool {
	status, _ := finalContent["status"].(string)
	return status == "approved" || status == "published"
}

// QueueStats is the read-only status endpoint payload: per-queue counts of
// waiting, active, completed and failed jobs plus a timestamp.
func (e *Engine) QueueStats(ctx context.Context) (*ports.QueueStatsSnapshot, error) {
	snapshot := &ports.QueueStatsSnapshot{
		Queues:    make(map[string]ports.QueueStats, len(e.queues)),
		Timestamp: time.Now(),
	}

	for name, queue := range e.queues {
		stats, err := queue.Stats(ctx)
		if err != nil {
			return nil, err
		}
		snapshot.Queues[name] = stats
	}
	return snapshot, nil
}
