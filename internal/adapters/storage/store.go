package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v3"
	json "github.com/goccy/go-json"

	"github.com/contentmill/conveyor/internal/domain"
	"github.com/contentmill/conveyor/internal/ports"
)

const (
	workflowPrefix = "workflow:"
	runPrefix      = "run:"
	runIndexPrefix = "runidx:"
)

// Store is the badger-backed run store. It shares the process-wide database
// handle opened at bootstrap; it never opens or closes the handle itself.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewStore(db *badger.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "run-store"),
	}
}

func workflowKey(id string) []byte {
	return []byte(workflowPrefix + id)
}

func runKey(id string) []byte {
	return []byte(runPrefix + id)
}

func runIndexKey(workflowID, runID string) []byte {
	return []byte(runIndexPrefix + workflowID + ":" + runID)
}

func (s *Store) CreateWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	data, err := json.Marshal(workflow)
	if err != nil {
		return domain.NewInternalError("failed to encode workflow", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := workflowKey(workflow.ID)
		if _, err := txn.Get(key); err == nil {
			return domain.NewConflictError("workflow", "workflow already exists: "+workflow.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("workflow created", "workflow_id", workflow.ID)
	return nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	var workflow domain.Workflow
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(workflowKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.NewNotFoundError("workflow", id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &workflow)
		})
	})
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

func (s *Store) CreateRun(ctx context.Context, run *domain.WorkflowRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return domain.NewInternalError("failed to encode run", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := runKey(run.ID)
		if _, err := txn.Get(key); err == nil {
			return domain.NewConflictError("run", "run already exists: "+run.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(runIndexKey(run.WorkflowID, run.ID), []byte(run.ID))
	})
	if err != nil {
		return err
	}

	s.logger.Debug("run created", "run_id", run.ID, "workflow_id", run.WorkflowID)
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.NewNotFoundError("run", id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateRun persists the run and bumps its version. The version is carried
// for observability; status updates are last-write-wins by design.
func (s *Store) UpdateRun(ctx context.Context, run *domain.WorkflowRun) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := runKey(run.ID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.NewNotFoundError("run", run.ID)
			}
			return err
		}

		run.Version++
		data, err := json.Marshal(run)
		if err != nil {
			return domain.NewInternalError("failed to encode run", err)
		}
		return txn.Set(key, data)
	})
}

func (s *Store) ListRuns(ctx context.Context, workflowID string) ([]*domain.WorkflowRun, error) {
	var runs []*domain.WorkflowRun
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(runIndexPrefix + workflowID + ":")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var runID string
			if err := it.Item().Value(func(val []byte) error {
				runID = string(val)
				return nil
			}); err != nil {
				return err
			}

			item, err := txn.Get(runKey(runID))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					s.logger.Warn("run index points at missing run", "run_id", runID)
					continue
				}
				return err
			}

			var run domain.WorkflowRun
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return err
			}
			runs = append(runs, &run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *Store) CountRuns(ctx context.Context, filter ports.RunFilter) (int, error) {
	if filter.WorkflowID != "" {
		runs, err := s.ListRuns(ctx, filter.WorkflowID)
		if err != nil {
			return 0, err
		}
		if filter.Status == "" {
			return len(runs), nil
		}
		count := 0
		for _, run := range runs {
			if run.Status == filter.Status {
				count++
			}
		}
		return count, nil
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(runPrefix)
		opts.Prefix = prefix
		if filter.Status == "" {
			opts.PrefetchValues = false
		}

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if filter.Status == "" {
				count++
				continue
			}
			var run domain.WorkflowRun
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return err
			}
			if run.Status == filter.Status {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close is a no-op: the shared database handle is owned by the bootstrap.
func (s *Store) Close() error {
	return nil
}
