package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/contentmill/conveyor/internal/api"
	"github.com/contentmill/conveyor/internal/core"
	"github.com/contentmill/conveyor/internal/domain"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
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

	manager, err := core.NewManager(db, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		return err
	}

	if err := manager.DeadLetters().StartCleanupSchedule(cfg.DLQ.CleanupSchedule, cfg.DLQ.RetentionDays); err != nil {
		return err
	}

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(manager.Engine(), manager.DeadLetters(), logger)
		go func() {
			if err := server.Start(cfg.API.BindAddr); err != nil {
				logger.Error("status api failed", "error", err.Error())
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("status api shutdown failed", "error", err.Error())
		}
	}
	if err := manager.Stop(); err != nil {
		logger.Error("manager shutdown failed", "error", err.Error())
	}
	return nil
}
