package server

import (
	"context"
	"sync"

	"github.com/marmos91/filetransfer/internal/logger"
)

// Pool executes admitted connections.
//
// The server acquires a WorkerSlot before accepting, so a pool never receives
// more than Capacity live connections and Submit never has to reject one.
type Pool interface {
	// Start prepares the pool. Connections are served until ctx is cancelled.
	Start(ctx context.Context) error

	// Submit hands over an accepted connection. The pool owns it from here
	// and must eventually Close it.
	Submit(c *Connection)

	// Stop stops accepting work and waits for running connections until ctx
	// is done.
	Stop(ctx context.Context) error

	// Name identifies the strategy in logs.
	Name() string
}

// ThreadPool serves connections on a fixed set of goroutines that share the
// server's storage backend.
type ThreadPool struct {
	size    int
	handler *handler
	queue   chan *Connection

	mu      sync.Mutex
	stopped bool
	workers sync.WaitGroup
}

func NewThreadPool(size int, h *handler) *ThreadPool {
	return &ThreadPool{
		size:    size,
		handler: h,
		queue:   make(chan *Connection, size),
	}
}

func (p *ThreadPool) Name() string {
	return string(StrategyThread)
}

func (p *ThreadPool) Start(ctx context.Context) error {
	for i := 0; i < p.size; i++ {
		p.workers.Add(1)
		go func() {
			defer p.workers.Done()
			for c := range p.queue {
				p.handler.Serve(ctx, c)
			}
		}()
	}
	logger.Debug("Thread pool started with %d workers", p.size)
	return nil
}

func (p *ThreadPool) Submit(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		logger.Debug("Thread pool stopped, dropping %s", c)
		c.Close()
		return
	}
	p.queue <- c
}

func (p *ThreadPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
