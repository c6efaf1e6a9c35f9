package domain

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

const (
	QueueScraping     = "scraping"
	QueueAIProcessing = "ai-processing"
	QueuePublishing   = "publishing"
)

// QueueNames lists the named queues in pipeline order.
var QueueNames = []string{QueueScraping, QueueAIProcessing, QueuePublishing}

type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Job is one unit of queued work. The ID is deterministic per run and stage
// so the queue can suppress duplicate enqueues while a prior job is still
// waiting or active.
type Job struct {
	ID          string    `json:"id"`
	Queue       string    `json:"queue"`
	Payload     []byte    `json:"payload"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

func (j *Job) ToBytes() ([]byte, error) {
	return json.Marshal(j)
}

func JobFromBytes(data []byte) (*Job, error) {
	var job Job
	err := json.Unmarshal(data, &job)
	return &job, err
}

// ScrapeJobID derives the de-duplicated job id for a run's first stage.
func ScrapeJobID(runID string) string {
	return "scrape-" + runID
}

// RetryScrapeJobID derives a fresh id so a retried run does not collide with
// the original de-duplicated job.
func RetryScrapeJobID(runID string, at time.Time) string {
	return fmt.Sprintf("scrape-%s-retry-%d", runID, at.UnixMilli())
}

type ScrapeJobPayload struct {
	RunID  string         `json:"run_id"`
	Topic  string         `json:"topic"`
	Config ScrapingConfig `json:"config"`
}

type AIJobPayload struct {
	RunID       string                 `json:"run_id"`
	ScrapedData map[string]interface{} `json:"scraped_data"`
	BrandVoice  []string               `json:"brand_voice,omitempty"`
}

type PublishJobPayload struct {
	RunID        string     `json:"run_id"`
	ContentID    string     `json:"content_id"`
	Platform     string     `json:"platform"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// payloadEnvelope is the minimal shape shared by all queue payloads, used to
// validate at the queue boundary and to index jobs by run.
type payloadEnvelope struct {
	RunID string `json:"run_id"`
}

// PayloadRunID extracts the owning run id from any queue payload.
func PayloadRunID(payload []byte) (string, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", NewValidationError("payload is not valid JSON", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if env.RunID == "" {
		return "", NewValidationError("payload is missing run_id", nil)
	}
	return env.RunID, nil
}

// ValidatePayload rejects payloads that do not match the discriminated shape
// expected by the target queue.
func ValidatePayload(queue string, payload []byte) error {
	if _, err := PayloadRunID(payload); err != nil {
		return err
	}

	switch queue {
	case QueueScraping:
		var p ScrapeJobPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.Topic == "" {
			return invalidPayload(queue, "topic")
		}
	case QueueAIProcessing:
		var p AIJobPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.ScrapedData == nil {
			return invalidPayload(queue, "scraped_data")
		}
	case QueuePublishing:
		var p PublishJobPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.ContentID == "" || p.Platform == "" {
			return invalidPayload(queue, "content_id/platform")
		}
	default:
		return NewValidationError("unknown queue", map[string]interface{}{"queue": queue})
	}
	return nil
}

func invalidPayload(queue, field string) Error {
	return NewValidationError("payload does not match queue schema", map[string]interface{}{
		"queue": queue,
		"field": field,
	})
}

// DeadLetterItem holds a job that exhausted its processing retry budget,
// retained until purged by age.
type DeadLetterItem struct {
	ID         string    `json:"id"`
	Queue      string    `json:"queue"`
	JobID      string    `json:"job_id"`
	Payload    []byte    `json:"payload"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
}

func NewDeadLetterItem(queue string, job *Job, reason string) *DeadLetterItem {
	return &DeadLetterItem{
		ID:         fmt.Sprintf("dlq-%s-%d", job.ID, time.Now().UnixNano()),
		Queue:      queue,
		JobID:      job.ID,
		Payload:    job.Payload,
		Reason:     reason,
		Timestamp:  time.Now(),
		RetryCount: job.Attempts,
	}
}

func (d *DeadLetterItem) ToBytes() ([]byte, error) {
	return json.Marshal(d)
}

func DeadLetterItemFromBytes(data []byte) (*DeadLetterItem, error) {
	var item DeadLetterItem
	err := json.Unmarshal(data, &item)
	return &item, err
}
