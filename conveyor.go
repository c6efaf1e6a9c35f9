// Package conveyor is a workflow orchestration engine for content
// production pipelines. It drives a run through an ordered set of stages
// (scrape, analyze, generate, review, publish) using durable named job
// queues, and applies resilience policies around stage work: retry with
// exponential backoff, per-dependency circuit breaking, sliding-window
// rate limiting and dead-lettering of jobs that exhaust their retry
// budget.
//
// Basic usage:
//
//	db, _ := badger.Open(badger.DefaultOptions("./data"))
//	manager, _ := conveyor.New(db, conveyor.DefaultConfig(), logger)
//	manager.RegisterHandler(&MyScrapeHandler{})
//	manager.Start(ctx)
//
//	runID, _ := manager.ExecuteWorkflow(ctx, workflowID, "topic", nil)
package conveyor

import (
	"log/slog"

	"github.com/dgraph-io/badger/v3"

	"github.com/contentmill/conveyor/internal/core"
	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

// Manager wires the run store, queues, resilience adapters and the
// workflow engine over a shared database handle owned by the caller.
type Manager = core.Manager

// Config is the process-level configuration tree.
type Config = domain.Config

// WorkflowConfig is the immutable per-workflow configuration.
type WorkflowConfig = domain.WorkflowConfig

// Workflow is the parent entity runs belong to.
type Workflow = domain.Workflow

// WorkflowRun is one execution instance of a workflow, from topic input to
// a terminal state.
type WorkflowRun = domain.WorkflowRun

// WorkflowMetrics aggregates run outcomes for one workflow.
type WorkflowMetrics = domain.WorkflowMetrics

// RunStatus is a run's position in the pipeline state machine.
type RunStatus = domain.RunStatus

// Job is one unit of queued work.
type Job = domain.Job

// DeadLetterItem is a failed job retained for inspection until purged.
type DeadLetterItem = domain.DeadLetterItem

// StageHandler consumes one queue's typed payloads.
type StageHandler = ports.StageHandler

// StageContext carries the resilience plumbing handlers use around their
// outbound calls.
type StageContext = ports.StageContext

// StageResult is what a handler produces for one job.
type StageResult = ports.StageResult

// NextJob describes the follow-up stage job a handler wants enqueued.
type NextJob = ports.NextJob

// QueueStats is a point-in-time snapshot of one queue's job counts.
type QueueStats = ports.QueueStats

// Run statuses, re-exported for handler implementations.
const (
	RunStatusPending    = domain.RunStatusPending
	RunStatusScraping   = domain.RunStatusScraping
	RunStatusAnalyzing  = domain.RunStatusAnalyzing
	RunStatusGenerating = domain.RunStatusGenerating
	RunStatusReviewing  = domain.RunStatusReviewing
	RunStatusPublishing = domain.RunStatusPublishing
	RunStatusPublished  = domain.RunStatusPublished
	RunStatusFailed     = domain.RunStatusFailed
)

// Queue names, in pipeline order.
const (
	QueueScraping     = domain.QueueScraping
	QueueAIProcessing = domain.QueueAIProcessing
	QueuePublishing   = domain.QueuePublishing
)

// New constructs a Manager over an already-open database handle. The
// caller owns the handle's lifecycle.
func New(db *badger.DB, config *Config, logger *slog.Logger) (*Manager, error) {
	return core.NewManager(db, config, logger)
}

// DefaultConfig returns the default configuration tree.
func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

// LoadConfig reads a TOML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	return domain.LoadConfig(path)
}
