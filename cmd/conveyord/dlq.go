package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/contentmill/conveyor/internal/adapters/dlq"
	"github.com/contentmill/conveyor/internal/domain"
)

func newDLQCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and maintain the dead-letter queue",
	}
	cmd.AddCommand(newDLQListCommand())
	cmd.AddCommand(newDLQCleanupCommand())
	return cmd
}

func newDLQListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-letter entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDLQManager(func(manager *dlq.Manager) error {
				items, err := manager.List(context.Background(), limit)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Println("dead-letter queue is empty")
					return nil
				}
				for _, item := range items {
					fmt.Printf("%s\tqueue=%s\tjob=%s\tattempts=%d\t%s\t%s\n",
						item.ID, item.Queue, item.JobID, item.RetryCount,
						item.Timestamp.Format(time.RFC3339), item.Reason)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to list")
	return cmd
}

func newDLQCleanupCommand() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete dead-letter entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return domain.NewValidationError("retention days must be positive", map[string]interface{}{
					"days": days,
				})
			}
			return withDLQManager(func(manager *dlq.Manager) error {
				deleted, err := manager.Cleanup(context.Background(), time.Duration(days)*24*time.Hour)
				if err != nil {
					return err
				}
				fmt.Printf("deleted %d entries older than %d days\n", deleted, days)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "delete entries older than this many days")
	return cmd
}

func withDLQManager(fn func(manager *dlq.Manager) error) error {
	logger := newLogger()

	cfg, err := domain.LoadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(dlq.NewManager(db, logger))
}
