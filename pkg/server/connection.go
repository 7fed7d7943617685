package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/filetransfer/internal/bufpool"
	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/internal/protocol"
	"github.com/marmos91/filetransfer/pkg/metrics"
)

// ConnState is the position of a connection in its request cycle.
type ConnState int32

const (
	StateReading ConnState = iota
	StateDispatching
	StateWriting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateReading:
		return "reading"
	case StateDispatching:
		return "dispatching"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one accepted client socket and the WorkerSlot it holds.
//
// The socket is closed and the slot released exactly once, whichever of the
// handler, the pool or a forced shutdown gets there first.
type Connection struct {
	ID   string
	Peer string

	conn   net.Conn
	slot   *WorkerSlot
	framer *protocol.Framer

	mu           sync.Mutex
	state        ConnState
	idle         bool
	lastActivity time.Time

	socketOnce sync.Once
	closeOnce  sync.Once
	onClose    func(*Connection)
}

// NewConnection wraps an accepted socket. slot may be nil when capacity is
// accounted for elsewhere (worker processes).
func NewConnection(conn net.Conn, slot *WorkerSlot, maxRequestBytes int) *Connection {
	return &Connection{
		ID:           uuid.NewString(),
		Peer:         conn.RemoteAddr().String(),
		conn:         conn,
		slot:         slot,
		framer:       protocol.NewFramer(maxRequestBytes),
		lastActivity: time.Now(),
	}
}

func (c *Connection) String() string {
	return fmt.Sprintf("conn=%s peer=%s", c.ID, c.Peer)
}

// State returns the current state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	if s != StateReading {
		c.idle = false
	}
	c.mu.Unlock()
}

// LastActivity returns when the connection last received bytes.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.idle = false
	c.mu.Unlock()
}

// markIdle records that the handler is about to wait for a new request.
func (c *Connection) markIdle() {
	c.mu.Lock()
	c.idle = c.state == StateReading && c.framer.Pending() == 0
	c.mu.Unlock()
}

// interruptIdle unblocks a handler waiting for a new request. A connection in
// the middle of a request is left alone.
func (c *Connection) interruptIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idle {
		_ = c.conn.SetReadDeadline(time.Now())
	}
}

// closeSocket closes the socket without releasing the slot.
func (c *Connection) closeSocket() error {
	var err error
	c.socketOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Close closes the socket, releases the slot and runs the close hook.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		_ = c.closeSocket()
		c.setState(StateClosed)
		c.slot.Release()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// deadlineWriter arms a write deadline before every Write.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return 0, err
		}
	}
	return w.conn.Write(p)
}

// handler runs the request cycle of a connection:
//
//	reading -> dispatching -> writing -> reading ... -> closed
//
// Protocol, payload and storage errors are answered with an ERROR response
// and the cycle continues. Transport errors, EOF, idle timeout and shutdown
// close the connection.
type handler struct {
	config     Config
	dispatcher *Dispatcher
	metrics    metrics.ServerMetrics
}

func newHandler(cfg Config, d *Dispatcher, m metrics.ServerMetrics) *handler {
	if m == nil {
		m = metrics.NewNoopServerMetrics()
	}
	return &handler{config: cfg, dispatcher: d, metrics: m}
}

// Serve runs the request cycle until the connection ends. Cancelling ctx
// stops the connection between requests; a request already being read or
// dispatched runs to completion.
func (h *handler) Serve(ctx context.Context, c *Connection) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler %s: %v", c, r)
		}
		c.Close()
	}()

	logger.Debug("Serving %s", c)

	stop := context.AfterFunc(ctx, c.interruptIdle)
	defer stop()

	// Dispatch must not observe shutdown cancellation.
	dispatchCtx := context.WithoutCancel(ctx)

	buf := bufpool.Get(h.config.ChunkSize)
	defer bufpool.Put(buf)

	for {
		if err := ctx.Err(); err != nil {
			logger.Debug("Closing %s: server shutdown", c)
			return
		}

		frame, err := h.readFrame(ctx, c, buf)
		if err != nil {
			h.logReadError(ctx, c, err)
			return
		}

		c.setState(StateDispatching)
		start := time.Now()

		var resp protocol.Response
		req, err := protocol.ParseRequest(frame)
		if err != nil {
			logger.Warn("Rejected request from %s: %v", c, err)
			h.metrics.RecordRequest("INVALID", string(protocol.StatusError), protocol.CodeOf(err).String(), 0)
			resp = protocol.ErrorResponseFor(err)
		} else {
			logger.Debug("Request from %s: %s", c, req)
			resp = h.dispatcher.Dispatch(dispatchCtx, req)
			if !resp.IsOK() {
				logger.Warn("Request %s from %s failed: %s", req, c, resp.Message)
			}
		}

		c.setState(StateWriting)
		out, err := protocol.EncodeResponse(resp)
		if err != nil {
			logger.Error("Failed to encode response for %s: %v", c, err)
			return
		}

		if _, err := protocol.WriteChunked(deadlineWriter{conn: c.conn, timeout: h.config.WriteTimeout}, out, h.config.ChunkSize); err != nil {
			logger.Debug("Closing %s: write failed: %v", c, err)
			return
		}

		logger.Debug("Request from %s processed in %v (%d response bytes)", c, time.Since(start), len(out))
		c.setState(StateReading)
	}
}

// readFrame reads until the framer yields a complete request.
func (h *handler) readFrame(ctx context.Context, c *Connection, buf []byte) ([]byte, error) {
	c.setState(StateReading)

	for {
		if h.config.IdleTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(h.config.IdleTimeout)); err != nil {
				return nil, protocol.NewTransportError("set read deadline", err)
			}
		}

		// The idle mark must follow the deadline so a concurrent interrupt
		// is not overwritten.
		c.markIdle()
		if c.framer.Pending() == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			c.touch()
			frame, ok, ferr := c.framer.Feed(buf[:n])
			if ferr != nil {
				return nil, ferr
			}
			if ok {
				return frame, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

func (h *handler) logReadError(ctx context.Context, c *Connection, err error) {
	pending := c.framer.Pending()

	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		if pending > 0 {
			logger.Warn("Connection %s closed with %d bytes of incomplete request", c, pending)
		} else {
			logger.Debug("Connection %s closed by client", c)
		}
	case ctx.Err() != nil:
		logger.Debug("Closing %s: server shutdown", c)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Info("Connection %s idle for %v, closing", c, h.config.IdleTimeout)
	case isProtocolError(err):
		logger.Warn("Closing %s: %v", c, err)
	default:
		logger.Debug("Closing %s: read failed: %v", c, err)
	}
}

func isProtocolError(err error) bool {
	var perr *protocol.Error
	return errors.As(err, &perr)
}
