package dlq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/robfig/cron/v3"

	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

const entryPrefix = "dlq:"

// Manager owns the dead-letter queue: failed jobs land here after their
// retry budget is exhausted and stay until retried or purged by age.
type Manager struct {
	db     *badger.DB
	logger *slog.Logger

	mu     sync.RWMutex
	queues map[string]ports.JobQueue
	cron   *cron.Cron
}

func NewManager(db *badger.DB, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		db:     db,
		logger: logger.With("component", "dlq"),
		queues: make(map[string]ports.JobQueue),
	}
}

// RegisterQueue makes a queue available as a retry target. Called during
// wiring, after the queues are constructed.
func (m *Manager) RegisterQueue(q ports.JobQueue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[q.Name()] = q
}

func entryKey(id string) []byte {
	return []byte(entryPrefix + id)
}

func (m *Manager) Add(ctx context.Context, item *domain.DeadLetterItem) error {
	data, err := item.ToBytes()
	if err != nil {
		return domain.NewInternalError("failed to encode dead-letter item", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(item.ID), data)
	})
	if err != nil {
		return err
	}

	m.logger.Warn("dead-letter item recorded",
		"item_id", item.ID, "queue", item.Queue, "job_id", item.JobID, "reason", item.Reason)
	return nil
}

// List returns up to limit entries. Read-only: entry state is not mutated.
func (m *Manager) List(ctx context.Context, limit int) ([]*domain.DeadLetterItem, error) {
	var items []*domain.DeadLetterItem

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(entryPrefix)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(items) >= limit {
				return nil
			}
			var item *domain.DeadLetterItem
			if err := it.Item().Value(func(val []byte) error {
				var err error
				item, err = domain.DeadLetterItemFromBytes(val)
				return err
			}); err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (m *Manager) Count(ctx context.Context) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(entryPrefix)
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Retry re-enqueues a dead-letter item onto its origin queue under a fresh
// job id, then deletes the entry.
func (m *Manager) Retry(ctx context.Context, itemID string) error {
	var item *domain.DeadLetterItem
	err := m.db.View(func(txn *badger.Txn) error {
		stored, err := txn.Get(entryKey(itemID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.NewNotFoundError("dead-letter item", itemID)
			}
			return err
		}
		return stored.Value(func(val []byte) error {
			var err error
			item, err = domain.DeadLetterItemFromBytes(val)
			return err
		})
	})
	if err != nil {
		return err
	}

	m.mu.RLock()
	target, ok := m.queues[item.Queue]
	m.mu.RUnlock()
	if !ok {
		return domain.NewNotFoundError("queue", item.Queue)
	}

	// Fresh id so the retry does not collide with the original job's
	// de-duplication index.
	jobID := item.JobID + "-dlq-" + time.Now().Format("20060102150405")
	if err := target.Enqueue(ctx, jobID, item.Payload, ports.EnqueueOptions{}); err != nil {
		return err
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(itemID))
	})
	if err != nil {
		return err
	}

	m.logger.Info("dead-letter item retried", "item_id", itemID, "queue", item.Queue, "job_id", jobID)
	return nil
}

// Cleanup deletes entries strictly older than maxAge at call time and
// returns the count removed. Safe to run concurrently with Add: entries
// written after the cutoff snapshot are never touched.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)

	var stale [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(entryPrefix)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var item *domain.DeadLetterItem
			if err := it.Item().Value(func(val []byte) error {
				var err error
				item, err = domain.DeadLetterItemFromBytes(val)
				return err
			}); err != nil {
				return err
			}
			if item.Timestamp.Before(cutoff) {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, key := range stale {
		err := m.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}

	if deleted > 0 {
		m.logger.Info("dead-letter cleanup finished", "deleted", deleted, "max_age", maxAge)
	}
	return deleted, nil
}

// StartCleanupSchedule runs Cleanup on a cron schedule until StopSchedule.
func (m *Manager) StartCleanupSchedule(schedule string, retentionDays int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		return domain.ErrAlreadyStarted
	}

	c := cron.New()
	maxAge := time.Duration(retentionDays) * 24 * time.Hour
	_, err := c.AddFunc(schedule, func() {
		if _, err := m.Cleanup(context.Background(), maxAge); err != nil {
			m.logger.Error("scheduled dead-letter cleanup failed", "error", err.Error())
		}
	})
	if err != nil {
		return domain.NewValidationError("invalid cleanup schedule", map[string]interface{}{
			"schedule": schedule,
			"error":    err.Error(),
		})
	}

	c.Start()
	m.cron = c
	m.logger.Info("dead-letter cleanup scheduled", "schedule", schedule, "retention_days", retentionDays)
	return nil
}

func (m *Manager) StopSchedule() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
}
