package domain

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusScraping   RunStatus = "scraping"
	RunStatusAnalyzing  RunStatus = "analyzing"
	RunStatusGenerating RunStatus = "generating"
	RunStatusReviewing  RunStatus = "reviewing"
	RunStatusPublishing RunStatus = "publishing"
	RunStatusPublished  RunStatus = "published"
	RunStatusFailed     RunStatus = "failed"
)

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusScraping, RunStatusAnalyzing,
		RunStatusGenerating, RunStatusReviewing, RunStatusPublishing,
		RunStatusPublished, RunStatusFailed:
		return true
	}
	return false
}

func (s RunStatus) Terminal() bool {
	return s == RunStatusPublished || s == RunStatusFailed
}

// nextStage maps each non-terminal status to its happy-path successor.
var nextStage = map[RunStatus]RunStatus{
	RunStatusPending:    RunStatusScraping,
	RunStatusScraping:   RunStatusAnalyzing,
	RunStatusAnalyzing:  RunStatusGenerating,
	RunStatusGenerating: RunStatusReviewing,
	RunStatusReviewing:  RunStatusPublishing,
	RunStatusPublishing: RunStatusPublished,
}

// CanTransition reports whether from -> to is an edge in the run state graph.
// Every state may fail; failed runs return to pending only through an
// explicit retry.
func CanTransition(from, to RunStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == RunStatusFailed {
		return from != RunStatusFailed
	}
	if from == RunStatusFailed {
		return to == RunStatusPending
	}
	return nextStage[from] == to
}

type Workflow struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Config    WorkflowConfig `json:"config"`
	CreatedAt time.Time      `json:"created_at"`
}

// WorkflowRun is the unit of orchestration. Stage payload snapshots are
// written once by the stage that produces them and never cleared, except by
// an explicit retry which clears Errors and CompletedAt.
type WorkflowRun struct {
	ID             string                 `json:"id"`
	WorkflowID     string                 `json:"workflow_id"`
	Topic          string                 `json:"topic"`
	Status         RunStatus              `json:"status"`
	ScrapedData    map[string]interface{} `json:"scraped_data,omitempty"`
	AnalysisData   map[string]interface{} `json:"analysis_data,omitempty"`
	GeneratedIdeas map[string]interface{} `json:"generated_ideas,omitempty"`
	FinalContent   map[string]interface{} `json:"final_content,omitempty"`
	Metrics        map[string]interface{} `json:"metrics,omitempty"`
	Errors         map[string]interface{} `json:"errors,omitempty"`
	BrandVoice     []string               `json:"brand_voice,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	Version        int64                  `json:"version"`
}

func NewWorkflowRun(workflowID, topic string, brandVoice []string) *WorkflowRun {
	return &WorkflowRun{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Topic:      topic,
		Status:     RunStatusPending,
		BrandVoice: brandVoice,
		StartedAt:  time.Now(),
		Version:    1,
	}
}

// WorkflowMetrics aggregates run outcomes for one workflow.
type WorkflowMetrics struct {
	WorkflowID        string        `json:"workflow_id"`
	TotalRuns         int           `json:"total_runs"`
	SuccessfulRuns    int           `json:"successful_runs"`
	FailedRuns        int           `json:"failed_runs"`
	AvgCompletionTime time.Duration `json:"avg_completion_time"`
	ContentItemsTotal int           `json:"content_items_total"`
	ApprovalRate      float64       `json:"approval_rate"`
}
