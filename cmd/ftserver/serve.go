package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/pkg/config"
	"github.com/marmos91/filetransfer/pkg/gc"
	"github.com/marmos91/filetransfer/pkg/server"
	"github.com/marmos91/filetransfer/pkg/storage"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveFlags struct {
	strategy string
	port     int
	logLevel string
}

func newServeCommand() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve [capacity]",
		Short: "Start the file transfer server",
		Long: `Start the file transfer server.

The optional capacity argument bounds how many connections are processed at
once. Anything that is not a positive integer falls back to 10. Connections
beyond capacity wait in the listen backlog until a worker frees up.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.strategy, "strategy", "", "Concurrency strategy: thread or process")
	cmd.Flags().IntVar(&flags.port, "port", 0, "TCP port to listen on")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string, flags serveFlags) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Command line overrides file and environment.
	if len(args) == 1 {
		cfg.Server.Capacity = server.ParseCapacity(args[0])
	}
	if cmd.Flags().Changed("strategy") {
		cfg.Server.Strategy = server.Strategy(strings.ToLower(flags.strategy))
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = flags.port
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = strings.ToUpper(flags.logLevel)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Configure(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := config.CreateBackend(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	metricsResult := config.InitializeMetrics(cfg)
	backend = storage.Instrument(backend, metricsResult.StorageMetrics)

	opts := []server.Option{server.WithMetrics(metricsResult.ServerMetrics)}
	if cfg.Server.Strategy == server.StrategyProcess {
		factory, err := workerCommandFactory(cfg)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithWorkerCommand(factory))
	}

	srv, err := server.New(cfg.Server, backend, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logServerConfig(cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(gctx)
	})

	if metricsResult.Server != nil {
		g.Go(func() error {
			return metricsResult.Server.Start(gctx)
		})
	}

	if cfg.GC.Enabled {
		collector, err := gc.NewCollector(backend, cfg.GC)
		if err != nil {
			logger.Debug("Garbage collection skipped: %v", err)
		} else {
			g.Go(func() error {
				return collector.Run(gctx)
			})
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error: %v", err)
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// workerCommandFactory re-executes this binary as "ftserver worker" with the
// resolved configuration in its environment.
func workerCommandFactory(cfg *config.Config) (server.CommandFactory, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate ftserver executable: %w", err)
	}

	env, err := config.EncodeWorkerEnv(cfg)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (*exec.Cmd, error) {
		cmd := exec.Command(exe, "worker")
		cmd.Env = append(os.Environ(), env)
		return cmd, nil
	}, nil
}

func logServerConfig(cfg *config.Config) {
	logger.Info("Server configuration:")
	logger.Info("  Address: %s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	logger.Info("  Strategy: %s", cfg.Server.Strategy)
	logger.Info("  Capacity: %d", cfg.Server.Capacity)
	logger.Info("  Storage: %s", cfg.Storage.Type)
	logger.Info("  Idle timeout: %v", cfg.Server.IdleTimeout)
	logger.Info("  Shutdown timeout: %v", cfg.Server.ShutdownTimeout)

	if cfg.Server.MetricsLogInterval == 0 {
		logger.Info("  Metrics log interval: disabled")
	} else {
		logger.Info("  Metrics log interval: %v", cfg.Server.MetricsLogInterval)
	}
	if cfg.Server.AcceptRate > 0 {
		logger.Info("  Accept rate: %.1f/s (burst %d)", cfg.Server.AcceptRate, cfg.Server.AcceptBurst)
	}
	if cfg.GC.Enabled {
		logger.Info("  GC: every %v, min age %v (dry run %v)", cfg.GC.Interval, cfg.GC.MinAge, cfg.GC.DryRun)
	}
	if cfg.Metrics.Enabled {
		logger.Info("  Metrics endpoint: :%d/metrics", cfg.Metrics.Port)
	}
}
