package e2e

import (
	"context"
	"net"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/pkg/client"
	"github.com/marmos91/filetransfer/pkg/server"
	"github.com/marmos91/filetransfer/pkg/storage"
)

const (
	// workerEnv marks a re-executed test binary as a process-strategy worker.
	workerEnv = "FTSERVER_E2E_WORKER"

	// workerRootEnv is the filesystem root the worker serves.
	workerRootEnv = "FTSERVER_E2E_WORKER_ROOT"
)

// TestContext provides a complete testing environment with:
// - Running file transfer server on a loopback port
// - Storage backend the server writes through
// - Client connected to the server
// - Cleanup mechanisms
type TestContext struct {
	T       *testing.T
	Config  *TestConfig
	Server  *server.Server
	Backend storage.Backend
	Client  *client.Client
	Addr    string
	Root    string

	served      chan error
	ownsBackend bool
	tempDirs    []string
}

// NewTestContext creates a new test environment with the specified configuration.
// It starts the server and returns once it accepts connections.
func NewTestContext(t *testing.T, config *TestConfig) *TestContext {
	t.Helper()

	tc := &TestContext{
		T:      t,
		Config: config,
		served: make(chan error, 1),
	}
	tc.Root = tc.CreateTempDir("ftserver-root-*")

	if config.Storage == StorageS3 {
		setupS3(t, config)
	}

	backend, err := config.CreateBackend(context.Background(), tc, tc.Root)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	tc.Backend = backend
	tc.ownsBackend = true

	tc.startServer(tc.serverOptions()...)

	tc.Client = client.New(client.Config{Addr: tc.Addr})

	return tc
}

// NewTestContextOn starts an additional server over an existing backend.
func NewTestContextOn(t *testing.T, config *TestConfig, backend storage.Backend, root string) *TestContext {
	t.Helper()

	tc := &TestContext{
		T:       t,
		Config:  config,
		Backend: backend,
		Root:    root,
		served:  make(chan error, 1),
	}

	tc.startServer(tc.serverOptions()...)
	tc.Client = client.New(client.Config{Addr: tc.Addr})

	return tc
}

func (tc *TestContext) serverOptions() []server.Option {
	if tc.Config.Strategy != server.StrategyProcess {
		return nil
	}

	root := tc.Root
	return []server.Option{
		server.WithWorkerCommand(func(ctx context.Context) (*exec.Cmd, error) {
			cmd := exec.Command(os.Args[0], "-test.run=^$")
			cmd.Env = append(os.Environ(), workerEnv+"=1", workerRootEnv+"="+root)
			return cmd, nil
		}),
	}
}

func (tc *TestContext) startServer(opts ...server.Option) {
	tc.T.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tc.T.Fatalf("Failed to listen: %v", err)
	}
	tc.Addr = listener.Addr().String()

	capacity := tc.Config.Capacity
	if capacity == 0 {
		capacity = 4
	}

	srv, err := server.New(server.Config{
		Capacity:        capacity,
		Strategy:        tc.Config.Strategy,
		ShutdownTimeout: 10 * time.Second,
	}, tc.Backend, append(opts, server.WithListener(listener))...)
	if err != nil {
		tc.T.Fatalf("Failed to create server: %v", err)
	}
	tc.Server = srv

	go func() {
		tc.served <- srv.Serve(context.Background())
	}()

	select {
	case <-srv.Ready():
	case err := <-tc.served:
		tc.T.Fatalf("Server exited before becoming ready: %v", err)
	case <-time.After(10 * time.Second):
		tc.T.Fatal("Timeout waiting for server to start")
	}

	logger.Debug("Test server %s listening on %s", tc.Config, tc.Addr)
}

// Cleanup stops the server, closes the client and removes temporary
// directories. The backend is closed only when this context created it.
func (tc *TestContext) Cleanup() {
	tc.T.Helper()

	if tc.Client != nil {
		_ = tc.Client.Close()
	}

	if tc.Server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := tc.Server.Stop(ctx); err != nil {
			tc.T.Logf("Server stop error: %v", err)
		}
	}

	if tc.ownsBackend {
		_ = tc.Backend.Close()
	}

	for _, dir := range tc.tempDirs {
		_ = os.RemoveAll(dir)
	}
}

// NewClient returns an extra client with its own connection.
func (tc *TestContext) NewClient() *client.Client {
	c := client.New(client.Config{Addr: tc.Addr})
	tc.T.Cleanup(func() { _ = c.Close() })
	return c
}

// CreateTempDir creates a temporary directory removed by Cleanup.
func (tc *TestContext) CreateTempDir(prefix string) string {
	tc.T.Helper()

	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		tc.T.Fatalf("Failed to create temp directory: %v", err)
	}
	tc.tempDirs = append(tc.tempDirs, dir)
	return dir
}

func (tc *TestContext) GetConfig() *TestConfig {
	return tc.Config
}

// runOnAllConfigs runs testFunc against every configuration in its own
// server.
func runOnAllConfigs(t *testing.T, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()

	for _, config := range AllConfigurations() {
		t.Run(config.Name, func(t *testing.T) {
			if config.Strategy == server.StrategyProcess && testing.Short() {
				t.Skip("process strategy spawns worker processes")
			}

			tc := NewTestContext(t, config)
			defer tc.Cleanup()

			testFunc(t, tc)
		})
	}
}
