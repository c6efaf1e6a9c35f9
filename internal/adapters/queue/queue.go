package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

// jobRef is the job-index record backing duplicate suppression and removal.
// Ref is the pending key while waiting, the claim id while active.
type jobRef struct {
	State domain.JobState `json:"state"`
	Ref   string          `json:"ref"`
}

// Queue is a badger-backed FIFO job queue. All queues share the process-wide
// database handle; keys are namespaced by queue name.
type Queue struct {
	name        string
	db          *badger.DB
	seq         *badger.Sequence
	dlq         ports.DeadLetterQueue
	maxAttempts int
	logger      *slog.Logger

	notify chan struct{}

	completed atomic.Int64
	failed    atomic.Int64

	mu     sync.Mutex
	closed bool
}

func NewQueue(name string, db *badger.DB, dlq ports.DeadLetterQueue, maxAttempts int, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	seq, err := db.GetSequence(sequenceKey(name), 64)
	if err != nil {
		return nil, domain.NewInternalError("failed to open queue sequence", err)
	}

	return &Queue{
		name:        name,
		db:          db,
		seq:         seq,
		dlq:         dlq,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "queue", "queue", name),
		notify:      make(chan struct{}, 1),
	}, nil
}

func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) Enqueue(ctx context.Context, jobID string, payload []byte, opts ports.EnqueueOptions) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	if err := domain.ValidatePayload(q.name, payload); err != nil {
		return err
	}

	maxAttempts := q.maxAttempts
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}

	job := &domain.Job{
		ID:          jobID,
		Queue:       q.name,
		Payload:     payload,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  time.Now(),
	}

	err := q.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(jobIndexKey(q.name, jobID)); err == nil {
			return domain.ErrDuplicateJob
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return q.writePending(txn, job)
	})
	if err != nil {
		if domain.IsDuplicateJob(err) {
			q.logger.Debug("duplicate enqueue suppressed", "job_id", jobID)
		}
		return err
	}

	q.logger.Debug("job enqueued", "job_id", jobID)
	q.wake()
	return nil
}

// writePending stores the job under a fresh sequence key and points the job
// index at it. Used by both first enqueue and retry re-queues.
func (q *Queue) writePending(txn *badger.Txn, job *domain.Job) error {
	sequence, err := q.seq.Next()
	if err != nil {
		return domain.NewInternalError("failed to advance queue sequence", err)
	}

	data, err := job.ToBytes()
	if err != nil {
		return domain.NewInternalError("failed to encode job", err)
	}

	key := pendingKey(q.name, sequence)
	if err := txn.Set(key, data); err != nil {
		return err
	}

	ref, err := json.Marshal(jobRef{State: domain.JobStateWaiting, Ref: string(key)})
	if err != nil {
		return err
	}
	return txn.Set(jobIndexKey(q.name, job.ID), ref)
}

// Dequeue claims the oldest waiting job and flips it to active. The caller
// settles the claim with Complete or Fail.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Job, string, bool, error) {
	if err := q.checkOpen(); err != nil {
		return nil, "", false, err
	}

	var job *domain.Job
	claimID := uuid.New().String()
	found := false

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := pendingPrefix(q.name)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return nil
		}

		item := it.Item()
		var decoded *domain.Job
		if err := item.Value(func(val []byte) error {
			var err error
			decoded, err = domain.JobFromBytes(val)
			return err
		}); err != nil {
			return err
		}

		if err := txn.Delete(item.KeyCopy(nil)); err != nil {
			return err
		}

		data, err := decoded.ToBytes()
		if err != nil {
			return err
		}
		if err := txn.Set(activeKey(q.name, claimID), data); err != nil {
			return err
		}

		ref, err := json.Marshal(jobRef{State: domain.JobStateActive, Ref: claimID})
		if err != nil {
			return err
		}
		if err := txn.Set(jobIndexKey(q.name, decoded.ID), ref); err != nil {
			return err
		}

		job = decoded
		found = true
		return nil
	})
	if err != nil {
		return nil, "", false, err
	}
	if !found {
		return nil, "", false, nil
	}

	q.logger.Debug("job claimed", "job_id", job.ID, "claim_id", claimID)
	return job, claimID, true, nil
}

func (q *Queue) Complete(ctx context.Context, claimID string) error {
	if err := q.checkOpen(); err != nil {
		return err
	}

	var jobID string
	err := q.db.Update(func(txn *badger.Txn) error {
		job, err := q.takeActive(txn, claimID)
		if err != nil {
			return err
		}
		jobID = job.ID
		return txn.Delete(jobIndexKey(q.name, job.ID))
	})
	if err != nil {
		return err
	}

	q.completed.Add(1)
	q.logger.Debug("job completed", "job_id", jobID, "claim_id", claimID)
	return nil
}

// Fail settles a claim as failed. The job is re-queued until its attempt
// budget is exhausted, then routed to the dead-letter queue. If the
// dead-letter write fails the job is put back on the queue: a job is never
// in neither place.
func (q *Queue) Fail(ctx context.Context, claimID string, reason string) error {
	if err := q.checkOpen(); err != nil {
		return err
	}

	var dead *domain.DeadLetterItem
	var exhausted *domain.Job
	var requeued bool
	var jobID string

	err := q.db.Update(func(txn *badger.Txn) error {
		job, err := q.takeActive(txn, claimID)
		if err != nil {
			return err
		}
		jobID = job.ID
		job.Attempts++

		if job.Attempts >= job.MaxAttempts {
			dead = domain.NewDeadLetterItem(q.name, job, reason)
			exhausted = job
			return txn.Delete(jobIndexKey(q.name, job.ID))
		}

		requeued = true
		return q.writePending(txn, job)
	})
	if err != nil {
		return err
	}

	if dead != nil {
		if err := q.dlq.Add(ctx, dead); err != nil {
			q.logger.Error("failed to move job to dead-letter queue",
				"job_id", jobID, "error", err.Error())
			if requeueErr := q.db.Update(func(txn *badger.Txn) error {
				return q.writePending(txn, exhausted)
			}); requeueErr != nil {
				q.logger.Error("failed to re-queue job after dead-letter failure",
					"job_id", jobID, "error", requeueErr.Error())
				return requeueErr
			}
			q.wake()
			return err
		}
		q.failed.Add(1)
		q.logger.Warn("job moved to dead-letter queue",
			"job_id", jobID, "reason", reason, "attempts", dead.RetryCount)
		return nil
	}

	if requeued {
		q.logger.Debug("job re-queued after failure", "job_id", jobID, "reason", reason)
		q.wake()
	}
	return nil
}

// takeActive removes and returns the active entry for a claim.
func (q *Queue) takeActive(txn *badger.Txn, claimID string) (*domain.Job, error) {
	key := activeKey(q.name, claimID)
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.NewNotFoundError("claim", claimID)
		}
		return nil, err
	}

	var job *domain.Job
	if err := item.Value(func(val []byte) error {
		var err error
		job, err = domain.JobFromBytes(val)
		return err
	}); err != nil {
		return nil, err
	}

	if err := txn.Delete(key); err != nil {
		return nil, err
	}
	return job, nil
}

// Remove deletes a job by id. Waiting jobs are removed outright; active
// jobs have their entry and index dropped so the worker's settle becomes a
// no-op, but the in-flight attempt itself is not interrupted.
func (q *Queue) Remove(ctx context.Context, jobID string) (bool, error) {
	if err := q.checkOpen(); err != nil {
		return false, err
	}

	removed := false
	err := q.db.Update(func(txn *badger.Txn) error {
		indexKey := jobIndexKey(q.name, jobID)
		item, err := txn.Get(indexKey)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		var ref jobRef
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ref)
		}); err != nil {
			return err
		}

		switch ref.State {
		case domain.JobStateWaiting:
			if err := txn.Delete([]byte(ref.Ref)); err != nil {
				return err
			}
		case domain.JobStateActive:
			if err := txn.Delete(activeKey(q.name, ref.Ref)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		removed = true
		return txn.Delete(indexKey)
	})
	if err != nil {
		return false, err
	}

	if removed {
		q.logger.Debug("job removed", "job_id", jobID)
	}
	return removed, nil
}

// RemoveByRun removes every job whose payload references the run.
func (q *Queue) RemoveByRun(ctx context.Context, runID string) (int, error) {
	if err := q.checkOpen(); err != nil {
		return 0, err
	}

	jobIDs, err := q.jobIDsForRun(runID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, jobID := range jobIDs {
		ok, err := q.Remove(ctx, jobID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (q *Queue) jobIDsForRun(runID string) ([]string, error) {
	var jobIDs []string

	collect := func(prefix []byte) error {
		return q.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var job *domain.Job
				if err := it.Item().Value(func(val []byte) error {
					var err error
					job, err = domain.JobFromBytes(val)
					return err
				}); err != nil {
					return err
				}

				owner, err := domain.PayloadRunID(job.Payload)
				if err != nil {
					q.logger.Warn("skipping job with malformed payload", "job_id", job.ID)
					continue
				}
				if owner == runID {
					jobIDs = append(jobIDs, job.ID)
				}
			}
			return nil
		})
	}

	if err := collect(pendingPrefix(q.name)); err != nil {
		return nil, err
	}
	if err := collect(activePrefix(q.name)); err != nil {
		return nil, err
	}
	return jobIDs, nil
}

// WaitForItem returns a channel that receives a signal when a job is
// enqueued. Consumers should still poll: the signal is best-effort.
func (q *Queue) WaitForItem(ctx context.Context) <-chan struct{} {
	return q.notify
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) Stats(ctx context.Context) (ports.QueueStats, error) {
	if err := q.checkOpen(); err != nil {
		return ports.QueueStats{}, err
	}

	stats := ports.QueueStats{
		Queue:     q.name,
		Completed: int(q.completed.Load()),
		Failed:    int(q.failed.Load()),
	}

	err := q.db.View(func(txn *badger.Txn) error {
		var err error
		if stats.Waiting, err = countPrefix(txn, pendingPrefix(q.name)); err != nil {
			return err
		}
		stats.Active, err = countPrefix(txn, activePrefix(q.name))
		return err
	})
	if err != nil {
		return ports.QueueStats{}, err
	}
	return stats, nil
}

func countPrefix(txn *badger.Txn, prefix []byte) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	count := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		count++
	}
	return count, nil
}

func (q *Queue) checkOpen() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueClosed
	}
	return nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	return q.seq.Release()
}
