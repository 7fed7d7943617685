package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/pkg/config"
	"github.com/marmos91/filetransfer/pkg/metrics"
	"github.com/marmos91/filetransfer/pkg/server"
	"github.com/spf13/cobra"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Serve one connection handed over by ftserver serve",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func runWorker() error {
	cfg, err := config.LoadWorker()
	if err != nil {
		return err
	}

	if err := logger.Configure(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	// The parent forwards SIGTERM on shutdown; an interrupt from the
	// terminal reaches the whole process group.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := config.CreateBackend(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("worker %d: failed to create storage: %w", os.Getpid(), err)
	}
	defer backend.Close()

	// Workers are short-lived and expose no metrics endpoint of their own.
	return server.ServeWorkerConn(ctx, cfg.Server, server.NewDispatcher(backend, metrics.NewNoopServerMetrics()))
}
