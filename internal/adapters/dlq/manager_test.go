package dlq

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentmill/conveyor/internal/adapters/queue"
	"github.com/contentmill/conveyor/internal/domain"
)

func newTestManager(t *testing.T) (*Manager, *queue.Queue) {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(db, logger)

	q, err := queue.NewQueue(domain.QueueScraping, db, m, 3, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	m.RegisterQueue(q)
	return m, q
}

func deadItem(t *testing.T, id string, age time.Duration) *domain.DeadLetterItem {
	t.Helper()
	payload, err := json.Marshal(domain.ScrapeJobPayload{RunID: "run-1", Topic: "espresso gear"})
	require.NoError(t, err)

	return &domain.DeadLetterItem{
		ID:         id,
		Queue:      domain.QueueScraping,
		JobID:      "scrape-run-1",
		Payload:    payload,
		Reason:     "scraper timeout",
		Timestamp:  time.Now().Add(-age),
		RetryCount: 3,
	}
}

func TestAddListCount(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Add(ctx, deadItem(t, fmt.Sprintf("item-%d", i), 0)))
	}

	count, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	items, err := m.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = m.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestCleanupRemovesOnlyStaleEntries(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, deadItem(t, "old-1", 40*24*time.Hour)))
	require.NoError(t, m.Add(ctx, deadItem(t, "old-2", 31*24*time.Hour)))
	require.NoError(t, m.Add(ctx, deadItem(t, "fresh", 2*24*time.Hour)))

	deleted, err := m.Cleanup(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	items, err := m.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "fresh", items[0].ID)
}

func TestCleanupEmptyIsNoOp(t *testing.T) {
	m, _ := newTestManager(t)

	deleted, err := m.Cleanup(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestRetryReenqueuesWithFreshID(t *testing.T) {
	m, q := newTestManager(t)
	ctx := context.Background()

	item := deadItem(t, "item-1", time.Hour)
	require.NoError(t, m.Add(ctx, item))

	require.NoError(t, m.Retry(ctx, "item-1"))

	// The entry is gone and the job is waiting again under a fresh id.
	count, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	job, _, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, item.JobID, job.ID)
	assert.Contains(t, job.ID, item.JobID)
	assert.Equal(t, 0, job.Attempts, "retried job gets a fresh attempt budget")
}

func TestRetryUnknownItem(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Retry(context.Background(), "no-such-item")
	assert.True(t, domain.IsNotFound(err))
}

func TestRetryUnknownQueue(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	item := deadItem(t, "item-1", time.Hour)
	item.Queue = "decommissioned"
	require.NoError(t, m.Add(ctx, item))

	err := m.Retry(ctx, "item-1")
	assert.True(t, domain.IsNotFound(err))

	// The entry stays put when the retry target is missing.
	count, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCleanupScheduleLifecycle(t *testing.T) {
	m, _ := newTestManager(t)

	require.Error(t, m.StartCleanupSchedule("not a schedule", 30))

	require.NoError(t, m.StartCleanupSchedule("0 3 * * *", 30))
	assert.ErrorIs(t, m.StartCleanupSchedule("0 3 * * *", 30), domain.ErrAlreadyStarted)
	m.StopSchedule()

	// Restartable after stop.
	require.NoError(t, m.StartCleanupSchedule("0 3 * * *", 30))
	m.StopSchedule()
}

func TestCleanupScheduleConcurrentStartStop(t *testing.T) {
	m, _ := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.StartCleanupSchedule("0 3 * * *", 30)
		}()
		go func() {
			defer wg.Done()
			m.StopSchedule()
		}()
	}
	wg.Wait()

	// Whatever interleaving happened, the manager ends in a coherent
	// state: stop then start must succeed.
	m.StopSchedule()
	require.NoError(t, m.StartCleanupSchedule("0 3 * * *", 30))
	m.StopSchedule()
}
