package server

import (
	"context"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/internal/protocol"
	"github.com/marmos91/filetransfer/pkg/storage"
	"github.com/marmos91/filetransfer/pkg/storage/fs"
	"github.com/stretchr/testify/require"
)

const (
	testWorkerEnv     = "FTSERVER_TEST_WORKER"
	testWorkerRootEnv = "FTSERVER_TEST_WORKER_ROOT"
)

// TestMain doubles as the worker process for the process strategy: the test
// binary re-executes itself with testWorkerEnv set.
func TestMain(m *testing.M) {
	if os.Getenv(testWorkerEnv) == "1" {
		os.Exit(runTestWorker())
	}
	logger.SetLevel("ERROR")
	os.Exit(m.Run())
}

func runTestWorker() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	backend, err := fs.New(ctx, os.Getenv(testWorkerRootEnv))
	if err != nil {
		logger.Error("test worker: %v", err)
		return 1
	}
	defer backend.Close()

	if err := ServeWorkerConn(ctx, Config{IdleTimeout: 10 * time.Second}, NewDispatcher(backend, nil)); err != nil {
		logger.Error("test worker: %v", err)
		return 1
	}
	return 0
}

// testWorkerCommand re-executes the test binary as a worker over root.
func testWorkerCommand(root string) CommandFactory {
	return func(ctx context.Context) (*exec.Cmd, error) {
		cmd := exec.Command(os.Args[0], "-test.run=^$")
		cmd.Env = append(os.Environ(), testWorkerEnv+"=1", testWorkerRootEnv+"="+root)
		return cmd, nil
	}
}

// countingBackend wraps a backend and records the peak number of concurrent
// calls. Every call sleeps for delay to force overlap.
type countingBackend struct {
	storage.Backend
	delay time.Duration

	mu      sync.Mutex
	current int
	peak    int
	calls   int
}

func (b *countingBackend) enter() {
	b.mu.Lock()
	b.current++
	b.calls++
	if b.current > b.peak {
		b.peak = b.current
	}
	b.mu.Unlock()
	time.Sleep(b.delay)
}

func (b *countingBackend) exit() {
	b.mu.Lock()
	b.current--
	b.mu.Unlock()
}

func (b *countingBackend) List(ctx context.Context) ([]string, error) {
	b.enter()
	defer b.exit()
	return b.Backend.List(ctx)
}

func (b *countingBackend) Read(ctx context.Context, name string) ([]byte, error) {
	b.enter()
	defer b.exit()
	return b.Backend.Read(ctx, name)
}

func (b *countingBackend) Write(ctx context.Context, name string, data []byte) error {
	b.enter()
	defer b.exit()
	return b.Backend.Write(ctx, name, data)
}

func (b *countingBackend) Remove(ctx context.Context, name string) error {
	b.enter()
	defer b.exit()
	return b.Backend.Remove(ctx, name)
}

func (b *countingBackend) Peak() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

func (b *countingBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// blockingBackend blocks Write until release is closed.
type blockingBackend struct {
	storage.Backend
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingBackend(inner storage.Backend) *blockingBackend {
	return &blockingBackend{
		Backend: inner,
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingBackend) Write(ctx context.Context, name string, data []byte) error {
	b.entered <- struct{}{}
	<-b.release
	return b.Backend.Write(ctx, name, data)
}

func (b *blockingBackend) Release() {
	b.once.Do(func() { close(b.release) })
}

type testServer struct {
	*Server
	addr   string
	served chan error
}

// startServer runs a server on a loopback port and stops it at cleanup.
func startServer(t *testing.T, cfg Config, backend storage.Backend, opts ...Option) *testServer {
	t.Helper()

	ln := mustListen(t)
	s, err := New(cfg, backend, append(opts, WithListener(ln))...)
	require.NoError(t, err)

	ts := &testServer{Server: s, addr: ln.Addr().String(), served: make(chan error, 1)}
	go func() {
		ts.served <- s.Serve(context.Background())
	}()

	select {
	case <-s.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return ts
}

// waitServed returns Serve's result.
func (ts *testServer) waitServed(t *testing.T) error {
	t.Helper()
	select {
	case err := <-ts.served:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func mustListen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func dialRaw(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// roundTrip writes raw and reads one response.
func roundTrip(t *testing.T, conn net.Conn, raw string) protocol.Response {
	t.Helper()
	_, err := conn.Write([]byte(raw))
	require.NoError(t, err)

	frame, err := readFrame(conn, 5*time.Second)
	require.NoError(t, err)

	resp, err := protocol.DecodeResponse(frame)
	require.NoError(t, err)
	return resp
}

// readFrame reads one terminated frame from conn.
func readFrame(conn net.Conn, timeout time.Duration) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	framer := protocol.NewFramer(0)
	buf := make([]byte, 64<<10)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if frame, ok, ferr := framer.Feed(buf[:n]); ferr != nil {
				return nil, ferr
			} else if ok {
				return frame, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}
