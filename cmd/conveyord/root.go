package main

import (
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v3"
	"github.com/spf13/cobra"

	"github.com/contentmill/conveyor/internal/domain"
)

var configPath string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "conveyord",
		Short:         "Content pipeline orchestration daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newDLQCommand())

	return root
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// openDatabase opens the process-wide store handle. The caller owns the
// close.
func openDatabase(cfg *domain.Config, logger *slog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.DataDir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.NewInternalError("failed to open database", err)
	}
	logger.Info("database opened", "data_dir", cfg.DataDir)
	return db, nil
}
