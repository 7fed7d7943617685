package e2e

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"testing"

	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/pkg/server"
	storagefs "github.com/marmos91/filetransfer/pkg/storage/fs"
)

func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		os.Exit(runWorker())
	}

	logger.SetLevel("ERROR")
	os.Exit(m.Run())
}

// runWorker serves the connection handed over by a process-strategy server.
func runWorker() int {
	logger.SetLevel("ERROR")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	backend, err := storagefs.New(ctx, os.Getenv(workerRootEnv))
	if err != nil {
		logger.Error("e2e worker: %v", err)
		return 1
	}
	defer backend.Close()

	if err := server.ServeWorkerConn(ctx, server.Config{}, server.NewDispatcher(backend, nil)); err != nil {
		logger.Error("e2e worker: %v", err)
		return 1
	}
	return 0
}
