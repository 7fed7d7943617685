package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/filetransfer/internal/protocol"
)

// Strategy selects how admitted connections are executed.
type Strategy string

const (
	// StrategyThread serves connections on a fixed set of goroutines sharing
	// one storage backend.
	StrategyThread Strategy = "thread"

	// StrategyProcess hands every connection to a worker OS process that owns
	// its own storage backend over the same root.
	StrategyProcess Strategy = "process"
)

const (
	DefaultPort            = 13337
	DefaultBindAddress     = "0.0.0.0"
	DefaultCapacity        = 10
	DefaultIdleTimeout     = 5 * time.Minute
	DefaultWriteTimeout    = 2 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxRequestBytes = 512 << 20
)

// Config holds the server configuration.
//
// Zero values are replaced with defaults by applyDefaults, so a zero Config
// describes a thread-pool server with capacity 10 on 0.0.0.0:13337.
type Config struct {
	// BindAddress is the interface to listen on.
	BindAddress string `mapstructure:"bind_address" json:"bind_address" yaml:"bind_address" validate:"omitempty,ip"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" json:"port" yaml:"port" validate:"min=0,max=65535"`

	// Capacity is the maximum number of connections processed concurrently.
	// Connections beyond capacity wait in the listen backlog, never rejected.
	Capacity int `mapstructure:"capacity" json:"capacity" yaml:"capacity" validate:"min=0"`

	// Strategy is "thread" or "process".
	Strategy Strategy `mapstructure:"strategy" json:"strategy" yaml:"strategy" validate:"omitempty,oneof=thread process"`

	// ChunkSize is the socket read and write size in bytes.
	ChunkSize int `mapstructure:"chunk_size" json:"chunk_size" yaml:"chunk_size" validate:"min=0"`

	// IdleTimeout closes a connection that sends nothing for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// WriteTimeout bounds each chunk written to the socket.
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// MaxRequestBytes bounds a single request, terminator excluded.
	MaxRequestBytes int `mapstructure:"max_request_bytes" json:"max_request_bytes" yaml:"max_request_bytes" validate:"min=0"`

	// ShutdownTimeout is how long Stop waits for connections to finish before
	// force-closing them.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// AcceptRate throttles admissions per second. Zero disables throttling.
	AcceptRate float64 `mapstructure:"accept_rate" json:"accept_rate" yaml:"accept_rate" validate:"min=0"`

	// AcceptBurst is the admission burst allowed by AcceptRate.
	AcceptBurst int `mapstructure:"accept_burst" json:"accept_burst" yaml:"accept_burst" validate:"min=0"`

	// MetricsLogInterval periodically logs connection counters. Zero disables.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" json:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`
}

// ApplyDefaults fills zero fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = DefaultBindAddress
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Strategy == "" {
		c.Strategy = StrategyThread
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = protocol.DefaultChunkSize
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxRequestBytes == 0 {
		c.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.AcceptRate > 0 && c.AcceptBurst == 0 {
		c.AcceptBurst = c.Capacity
	}
}

// Validate checks a defaulted configuration.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("invalid capacity %d: must be > 0", c.Capacity)
	}
	if c.Strategy != StrategyThread && c.Strategy != StrategyProcess {
		return fmt.Errorf("invalid strategy %q: must be %q or %q", c.Strategy, StrategyThread, StrategyProcess)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("invalid chunk size %d: must be > 0", c.ChunkSize)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid idle timeout %v: must be >= 0", c.IdleTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid write timeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.MaxRequestBytes < 0 {
		return fmt.Errorf("invalid max request size %d: must be >= 0", c.MaxRequestBytes)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("invalid accept rate %v: must be >= 0", c.AcceptRate)
	}
	return nil
}

// ParseCapacity interprets a positional capacity argument. Anything that is
// not a positive integer yields DefaultCapacity.
func ParseCapacity(arg string) int {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n <= 0 {
		return DefaultCapacity
	}
	return n
}
