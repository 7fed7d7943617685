package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/internal/ratelimiter"
	"github.com/marmos91/filetransfer/pkg/metrics"
	"github.com/marmos91/filetransfer/pkg/storage"
)

// Server is the file transfer server.
//
// Architecture:
// A single accept loop acquires a WorkerSlot before every Accept, so at most
// Capacity connections are admitted at once. Further peers wait in the
// kernel listen backlog and are never rejected. Each admitted connection is
// handed to a Pool: goroutines sharing one storage backend (thread strategy)
// or one worker process per connection (process strategy).
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Idle connections are interrupted; requests in progress complete
//  4. Wait for active connections (up to ShutdownTimeout)
//  5. Force-close whatever is left
//
// Thread safety:
// All methods are safe for concurrent use. Stop is idempotent.
type Server struct {
	config  Config
	backend storage.Backend
	metrics metrics.ServerMetrics

	dispatcher *Dispatcher
	handler    *handler
	pool       Pool
	slots      *slotPool
	limiter    *ratelimiter.AcceptLimiter

	workerCommand CommandFactory

	listener   net.Listener
	listenerMu sync.Mutex
	ready      chan struct{}

	// activeConns tracks admitted connections for graceful shutdown.
	activeConns sync.WaitGroup

	// activeConnections maps connection ID to *Connection for forced close.
	activeConnections sync.Map

	connCount atomic.Int32

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// shutdownCtx is cancelled when shutdown starts. Handlers stop between
	// requests when it is done.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	serving atomic.Bool
	done    chan struct{}
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics sets the metrics sink. Defaults to no-op.
func WithMetrics(m metrics.ServerMetrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithListener serves on an existing listener instead of binding
// BindAddress:Port.
func WithListener(ln net.Listener) Option {
	return func(s *Server) {
		s.listener = ln
	}
}

// WithWorkerCommand sets how worker processes are started. Required for the
// process strategy.
func WithWorkerCommand(factory CommandFactory) Option {
	return func(s *Server) {
		s.workerCommand = factory
	}
}

// WithPool replaces the strategy's pool.
func WithPool(p Pool) Option {
	return func(s *Server) {
		s.pool = p
	}
}

// New creates a server. The configuration is defaulted and validated.
func New(cfg Config, backend storage.Backend, opts ...Option) (*Server, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	s := &Server{
		config:         cfg,
		backend:        backend,
		metrics:        metrics.NewNoopServerMetrics(),
		limiter:        ratelimiter.New(cfg.AcceptRate, cfg.AcceptBurst),
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.slots = newSlotPool(cfg.Capacity, s.metrics.SetBusyWorkers)
	s.dispatcher = NewDispatcher(backend, s.metrics)
	s.handler = newHandler(cfg, s.dispatcher, s.metrics)

	if s.pool == nil {
		switch cfg.Strategy {
		case StrategyThread:
			s.pool = NewThreadPool(cfg.Capacity, s.handler)
		case StrategyProcess:
			if s.workerCommand == nil {
				cancelRequests()
				return nil, fmt.Errorf("process strategy requires a worker command")
			}
			s.pool = NewProcessPool(s.workerCommand)
		}
	}

	logger.Debug("Server config: strategy=%s capacity=%d chunk_size=%d idle_timeout=%v max_request_bytes=%d",
		cfg.Strategy, cfg.Capacity, cfg.ChunkSize, cfg.IdleTimeout, cfg.MaxRequestBytes)

	return s, nil
}

// Serve listens and runs the accept loop until ctx is cancelled or Stop is
// called. It returns nil after a clean graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if !s.serving.CompareAndSwap(false, true) {
		return fmt.Errorf("server already serving")
	}
	defer close(s.done)

	if err := s.listen(); err != nil {
		s.initiateShutdown()
		return err
	}

	if err := s.pool.Start(s.shutdownCtx); err != nil {
		s.initiateShutdown()
		return fmt.Errorf("start %s pool: %w", s.pool.Name(), err)
	}

	logger.Info("File server listening on %s (strategy=%s capacity=%d)",
		s.listener.Addr(), s.pool.Name(), s.config.Capacity)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(s.shutdownCtx)
	}

	return s.acceptLoop()
}

func (s *Server) listen() error {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		s.listener = ln
	}

	select {
	case <-s.shutdown:
		_ = s.listener.Close()
		return errShuttingDown
	default:
	}

	close(s.ready)
	return nil
}

func (s *Server) acceptLoop() error {
	var backoff time.Duration

	for {
		// Capacity is reserved before Accept: excess peers stay in the
		// listen backlog.
		slot, err := s.slots.Acquire(s.shutdown)
		if err != nil {
			return s.gracefulShutdown()
		}

		if err := s.limiter.Wait(s.shutdownCtx); err != nil {
			slot.Release()
			return s.gracefulShutdown()
		}

		netConn, err := s.listener.Accept()
		if err != nil {
			slot.Release()

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				s.initiateShutdown()
				_ = s.gracefulShutdown()
				return fmt.Errorf("listener closed unexpectedly: %w", err)
			}

			backoff = nextBackoff(backoff)
			logger.Warn("Error accepting connection: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		c := NewConnection(netConn, slot, s.config.MaxRequestBytes)
		s.track(c)
		s.pool.Submit(c)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// track registers c as active until it closes.
func (s *Server) track(c *Connection) {
	s.activeConns.Add(1)
	current := s.connCount.Add(1)
	s.activeConnections.Store(c.ID, c)

	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)

	logger.Debug("Accepted %s (active: %d)", c, current)

	c.onClose = func(c *Connection) {
		s.activeConnections.Delete(c.ID)
		remaining := s.connCount.Add(-1)

		s.metrics.RecordConnectionClosed()
		s.metrics.SetActiveConnections(remaining)
		logger.Debug("Closed %s (active: %d)", c, remaining)

		s.activeConns.Done()
	}
}

func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Shutdown initiated")
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				logger.Debug("Error closing listener: %v", err)
			}
		}
		s.listenerMu.Unlock()

		s.cancelRequests()
	})
}

func (s *Server) gracefulShutdown() error {
	active := s.connCount.Load()
	logger.Info("Graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		active, s.config.ShutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	poolErr := s.pool.Stop(ctx)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		if poolErr != nil {
			return fmt.Errorf("%s pool shutdown: %w", s.pool.Name(), poolErr)
		}
		logger.Info("Graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Shutdown timeout exceeded: %d connection(s) still active after %v, forcing closure",
			remaining, s.config.ShutdownTimeout)
		s.forceCloseConnections()
		return fmt.Errorf("shutdown timeout: %d connection(s) force-closed", remaining)
	}
}

func (s *Server) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		c := value.(*Connection)
		c.Close()
		s.metrics.RecordConnectionForceClosed()
		closed++
		return true
	})
	if closed > 0 {
		logger.Info("Force-closed %d connection(s)", closed)
	}
}

// Stop initiates shutdown and waits for Serve to return or ctx to be done.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if !s.serving.Load() {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		logger.Warn("Stop: %d connection(s) still active: %v", s.connCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

func (s *Server) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("Server metrics: active_connections=%d busy_workers=%d/%d",
				s.connCount.Load(), s.slots.Busy(), s.slots.Capacity())
		}
	}
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address, or nil before Serve has bound it.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveConnections returns the number of admitted connections.
func (s *Server) ActiveConnections() int32 {
	return s.connCount.Load()
}

// BusyWorkers returns the number of held worker slots.
func (s *Server) BusyWorkers() int32 {
	return s.slots.Busy()
}

func (s *Server) Config() Config {
	return s.config
}
