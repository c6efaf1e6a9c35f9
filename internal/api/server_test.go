package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentmill/conveyor/internal/adapters/dlq"
	"github.com/contentmill/conveyor/internal/adapters/engine"
	"github.com/contentmill/conveyor/internal/adapters/queue"
	"github.com/contentmill/conveyor/internal/adapters/storage"
	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine, *dlq.Manager, *storage.Store) {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewStore(db, logger)
	deadLetters := dlq.NewManager(db, logger)

	queues := make(map[string]ports.JobQueue, len(domain.QueueNames))
	for _, name := range domain.QueueNames {
		q, err := queue.NewQueue(name, db, deadLetters, 3, logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = q.Close() })
		deadLetters.RegisterQueue(q)
		queues[name] = q
	}

	eng := engine.New(store, queues, logger)
	return NewServer(eng, deadLetters, logger), eng, deadLetters, store
}

func doRequest(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestQueueStatsEndpoint(t *testing.T) {
	s, eng, _, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.CreateWorkflow(ctx, &domain.Workflow{ID: "wf-1", Name: "daily", CreatedAt: time.Now()}))
	_, err := eng.ExecuteWorkflow(ctx, "wf-1", "topic", nil)
	require.NoError(t, err)

	rec := doRequest(t, s, "/status/queues")
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot struct {
		Queues map[string]ports.QueueStats `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Len(t, snapshot.Queues, len(domain.QueueNames))
	assert.Equal(t, 1, snapshot.Queues[domain.QueueScraping].Waiting)
}

func TestGetRunEndpoint(t *testing.T) {
	s, eng, _, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.CreateWorkflow(ctx, &domain.Workflow{ID: "wf-1", Name: "daily", CreatedAt: time.Now()}))
	runID, err := eng.ExecuteWorkflow(ctx, "wf-1", "espresso gear", nil)
	require.NoError(t, err)

	rec := doRequest(t, s, "/runs/"+runID)
	require.Equal(t, http.StatusOK, rec.Code)

	var run domain.WorkflowRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, domain.RunStatusPending, run.Status)
}

func TestGetRunNotFound(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(t, s, "/runs/absent")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowMetricsEndpoint(t *testing.T) {
	s, _, _, store := newTestServer(t)

	require.NoError(t, store.CreateWorkflow(context.Background(), &domain.Workflow{ID: "wf-1", Name: "daily", CreatedAt: time.Now()}))

	rec := doRequest(t, s, "/workflows/wf-1/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics domain.WorkflowMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, "wf-1", metrics.WorkflowID)
	assert.Equal(t, 0, metrics.TotalRuns)
}

func TestDeadLetterEndpoint(t *testing.T) {
	s, _, deadLetters, _ := newTestServer(t)
	ctx := context.Background()

	payload, err := json.Marshal(domain.ScrapeJobPayload{RunID: "run-1", Topic: "topic"})
	require.NoError(t, err)
	require.NoError(t, deadLetters.Add(ctx, &domain.DeadLetterItem{
		ID:         "item-1",
		Queue:      domain.QueueScraping,
		JobID:      "scrape-run-1",
		Payload:    payload,
		Reason:     "scraper timeout",
		Timestamp:  time.Now(),
		RetryCount: 3,
	}))

	rec := doRequest(t, s, "/dlq")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total int                      `json:"total"`
		Items []*domain.DeadLetterItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "scraper timeout", body.Items[0].Reason)
}

func TestDeadLetterEndpointRejectsBadLimit(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(t, s, "/dlq?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, "/dlq?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
