// Package client implements the client side of the file transfer protocol.
//
// A Client keeps one TCP connection and sends one request at a time over it,
// waiting for the full response before the next request is written. Responses
// are reassembled with the same Framer the server uses, so a terminator split
// across reads is always found.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/filetransfer/internal/bufpool"
	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/internal/protocol"
)

const (
	DefaultAddr        = "127.0.0.1:13337"
	DefaultDialTimeout = 10 * time.Second
	DefaultIOTimeout   = 5 * time.Minute
)

// RemoteError is an ERROR response returned by the server.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// IsRemote reports whether err is an ERROR response from the server, as
// opposed to a connection failure.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// Config configures a Client.
type Config struct {
	// Addr is the server address (host:port).
	Addr string

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// IOTimeout bounds each request round trip. Zero disables the deadline.
	IOTimeout time.Duration

	// ChunkSize is the socket read and write size.
	ChunkSize int

	// MaxResponseBytes bounds a response body. Zero means unbounded.
	MaxResponseBytes int
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.IOTimeout < 0 {
		c.IOTimeout = 0
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = protocol.DefaultChunkSize
	}
}

// Client sends requests to a file transfer server.
//
// The connection is dialed lazily and redialed after a transport failure.
// Methods are safe for concurrent use; requests are serialized.
type Client struct {
	config Config

	mu     sync.Mutex
	conn   net.Conn
	framer *protocol.Framer
}

// New creates a client. No connection is made until the first request.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		config: cfg,
		framer: protocol.NewFramer(cfg.MaxResponseBytes),
	}
}

// Dial creates a client and connects it.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	c := New(cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Addr() string {
	return c.config.Addr
}

// connect dials the server. Called with c.mu held.
func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.config.Addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.config.Addr, err)
	}

	c.conn = conn
	c.framer.Reset()
	logger.Debug("Connected to %s from %s", c.config.Addr, conn.LocalAddr())
	return nil
}

// disconnect drops the connection after a transport failure. Called with
// c.mu held.
func (c *Client) disconnect() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.framer.Reset()
}

// Do sends req and returns the decoded response. An ERROR response is
// returned as a Response, not as an error; errors are transport or decode
// failures, after which the connection is dropped.
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return protocol.Response{}, err
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		c.disconnect()
		return protocol.Response{}, err
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	deadline := time.Time{}
	if c.config.IOTimeout > 0 {
		deadline = time.Now().Add(c.config.IOTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return protocol.Response{}, fmt.Errorf("set deadline: %w", err)
	}

	// Unblock socket I/O when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := protocol.WriteChunked(c.conn, protocol.FormatRequest(req), c.config.ChunkSize); err != nil {
		return protocol.Response{}, wrapIOError(ctx, "send request", err)
	}

	buf := bufpool.Get(c.config.ChunkSize)
	defer bufpool.Put(buf)

	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			frame, ok, ferr := c.framer.Feed(buf[:n])
			if ferr != nil {
				return protocol.Response{}, ferr
			}
			if ok {
				return protocol.DecodeResponse(frame)
			}
		}
		if err != nil {
			return protocol.Response{}, wrapIOError(ctx, "read response", err)
		}
	}
}

func wrapIOError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Client) expect(ctx context.Context, req protocol.Request, kind protocol.ResponseKind) (protocol.Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return protocol.Response{}, err
	}
	if !resp.IsOK() {
		return protocol.Response{}, &RemoteError{Message: resp.Message}
	}
	if resp.Kind != kind {
		return protocol.Response{}, fmt.Errorf("%s: unexpected response shape", req.Command)
	}
	return resp, nil
}

// List returns the names of the files stored on the server.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, err := c.expect(ctx, protocol.NewListRequest(), protocol.KindList)
	if err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// Get downloads name.
func (c *Client) Get(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.expect(ctx, protocol.NewGetRequest(name), protocol.KindFile)
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

// Add uploads data as name and returns the server's confirmation message.
func (c *Client) Add(ctx context.Context, name string, data []byte) (string, error) {
	resp, err := c.expect(ctx, protocol.NewAddRequest(name, data), protocol.KindMessage)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Delete removes name and returns the server's confirmation message.
func (c *Client) Delete(ctx context.Context, name string) (string, error) {
	resp, err := c.expect(ctx, protocol.NewDeleteRequest(name), protocol.KindMessage)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Close closes the connection. The client may be reused; the next request
// redials.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.framer.Reset()
	return err
}
