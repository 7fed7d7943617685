package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/marmos91/filetransfer/internal/logger"
)

// Environment passed to worker processes.
const (
	WorkerConnIDEnv = "FTSERVER_WORKER_CONN_ID"
	WorkerPeerEnv   = "FTSERVER_WORKER_PEER"

	// WorkerConnFD is the descriptor of the handed-off socket in the worker.
	WorkerConnFD = 3
)

// CommandFactory builds the command that runs one worker process. The pool
// adds the socket as ExtraFiles[0] (descriptor 3) and the connection env.
type CommandFactory func(ctx context.Context) (*exec.Cmd, error)

type fileConn interface {
	File() (*os.File, error)
}

// ProcessPool hands every connection to its own worker process.
//
// The socket is duplicated into the child and the parent closes both of its
// copies immediately after the child starts. The connection's WorkerSlot is
// released when the child exits, so at most Capacity workers run at once.
type ProcessPool struct {
	newCommand CommandFactory

	mu       sync.Mutex
	stopped  bool
	ctx      context.Context
	children map[string]*exec.Cmd
	running  sync.WaitGroup
}

func NewProcessPool(factory CommandFactory) *ProcessPool {
	return &ProcessPool{
		newCommand: factory,
		children:   make(map[string]*exec.Cmd),
		ctx:        context.Background(),
	}
}

func (p *ProcessPool) Name() string {
	return string(StrategyProcess)
}

func (p *ProcessPool) Start(ctx context.Context) error {
	if p.newCommand == nil {
		return fmt.Errorf("process pool: no worker command configured")
	}
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()
	return nil
}

func (p *ProcessPool) Submit(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		logger.Debug("Process pool stopped, dropping %s", c)
		c.Close()
		return
	}

	if err := p.spawn(c); err != nil {
		logger.Error("Failed to hand off %s to a worker process: %v", c, err)
		c.Close()
	}
}

// spawn starts a worker for c. Called with p.mu held.
func (p *ProcessPool) spawn(c *Connection) error {
	fc, ok := c.conn.(fileConn)
	if !ok {
		return fmt.Errorf("connection type %T cannot be handed to a process", c.conn)
	}

	// ========================================================================
	// Step 1: Duplicate the socket for the child
	// ========================================================================

	file, err := fc.File()
	if err != nil {
		return fmt.Errorf("duplicate socket: %w", err)
	}

	// ========================================================================
	// Step 2: Start the worker with the socket on descriptor 3
	// ========================================================================

	cmd, err := p.newCommand(p.ctx)
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("build worker command: %w", err)
	}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env,
		WorkerConnIDEnv+"="+c.ID,
		WorkerPeerEnv+"="+c.Peer,
	)
	cmd.ExtraFiles = []*os.File{file}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	startErr := cmd.Start()

	// ========================================================================
	// Step 3: Close the parent's copies, exactly once
	// ========================================================================

	_ = file.Close()
	_ = c.closeSocket()

	if startErr != nil {
		return fmt.Errorf("start worker: %w", startErr)
	}

	c.setState(StateDispatching)
	p.children[c.ID] = cmd
	p.running.Add(1)
	logger.Debug("Worker pid=%d serving %s", cmd.Process.Pid, c)

	go p.reap(c, cmd)
	return nil
}

// reap waits for the worker serving c and releases its slot.
func (p *ProcessPool) reap(c *Connection, cmd *exec.Cmd) {
	defer p.running.Done()

	err := cmd.Wait()
	if err != nil {
		logger.Warn("Worker pid=%d for %s exited: %v", cmd.Process.Pid, c, err)
	} else {
		logger.Debug("Worker pid=%d for %s finished", cmd.Process.Pid, c)
	}

	p.mu.Lock()
	delete(p.children, c.ID)
	p.mu.Unlock()

	c.Close()
}

// Active returns the number of running worker processes.
func (p *ProcessPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.children)
}

// Stop asks every worker to finish its current request and exit (SIGTERM),
// then kills the ones still running when ctx is done.
func (p *ProcessPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	for id, cmd := range p.children {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			logger.Debug("Failed to signal worker for conn=%s: %v", id, err)
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	p.mu.Lock()
	killed := 0
	for _, cmd := range p.children {
		if err := cmd.Process.Kill(); err == nil {
			killed++
		}
	}
	p.mu.Unlock()

	logger.Warn("Killed %d worker process(es) after shutdown timeout", killed)
	<-done
	return ctx.Err()
}

// ServeWorkerConn serves the connection handed to a worker process on
// descriptor WorkerConnFD until the peer disconnects or ctx is cancelled.
func ServeWorkerConn(ctx context.Context, cfg Config, d *Dispatcher) error {
	cfg.ApplyDefaults()

	file := os.NewFile(uintptr(WorkerConnFD), "conn")
	if file == nil {
		return fmt.Errorf("worker: descriptor %d is not open", WorkerConnFD)
	}
	conn, err := net.FileConn(file)
	_ = file.Close()
	if err != nil {
		return fmt.Errorf("worker: rebuild connection: %w", err)
	}

	c := NewConnection(conn, nil, cfg.MaxRequestBytes)
	if id := os.Getenv(WorkerConnIDEnv); id != "" {
		c.ID = id
	}
	if peer := os.Getenv(WorkerPeerEnv); peer != "" {
		c.Peer = peer
	}

	logger.Debug("Worker pid=%d serving %s", os.Getpid(), c)
	newHandler(cfg, d, nil).Serve(ctx, c)
	return nil
}
