// Package gc removes leftovers of interrupted uploads.
//
// A writer that dies between creating its temporary file and renaming it into
// place leaves the temporary file behind. This can occur due to:
//   - Worker processes killed mid-request
//   - Server crashes or power loss during an upload
//   - Disk errors while committing the rename
//
// The collector works with any storage.Backend that implements
// storage.Collectable. Temporary files are never listed or served, so the
// collector only reclaims disk space.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/pkg/storage"
)

const (
	DefaultInterval = time.Hour
	DefaultMinAge   = time.Hour
)

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether garbage collection runs.
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`

	// Interval is how often to run garbage collection (default: 1h).
	Interval time.Duration `mapstructure:"interval" json:"interval" yaml:"interval" validate:"min=0"`

	// MinAge is how long a temporary file must be untouched before it is
	// considered abandoned (default: 1h). It must exceed the longest upload.
	MinAge time.Duration `mapstructure:"min_age" json:"min_age" yaml:"min_age" validate:"min=0"`

	// DryRun logs what would be deleted without deleting.
	DryRun bool `mapstructure:"dry_run" json:"dry_run" yaml:"dry_run"`
}

// ApplyDefaults fills zero durations.
func (c *Config) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.MinAge == 0 {
		c.MinAge = DefaultMinAge
	}
}

// Collector periodically removes stale temporary uploads from a backend.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	backend storage.Collectable
	config  Config
	now     func() time.Time
}

// NewCollector creates a garbage collector for backend.
//
// Returns an error if the backend leaves no garbage to collect.
func NewCollector(backend storage.Backend, config Config) (*Collector, error) {
	collectable, ok := storage.Unwrap(backend).(storage.Collectable)
	if !ok {
		return nil, fmt.Errorf("storage backend %T does not support garbage collection", backend)
	}

	config.ApplyDefaults()

	return &Collector{
		backend: collectable,
		config:  config,
		now:     time.Now,
	}, nil
}

// Run collects once immediately, then every Interval until ctx is cancelled.
// It always returns nil so it can run beside the server in an errgroup
// without tearing it down.
func (c *Collector) Run(ctx context.Context) error {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return nil
	}

	logger.Info("Starting garbage collector: interval=%s min_age=%s dry_run=%v",
		c.config.Interval, c.config.MinAge, c.config.DryRun)

	c.runOnce(ctx)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runOnce(ctx)

		case <-ctx.Done():
			logger.Info("Garbage collector stopped")
			return nil
		}
	}
}

func (c *Collector) runOnce(ctx context.Context) {
	stats, err := c.collect(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("Garbage collection failed: %v", err)
		}
		return
	}
	if stats.StaleCount > 0 {
		logger.Info("Garbage collection completed: %s", stats.Summary())
	} else {
		logger.Debug("Garbage collection completed: %s", stats.Summary())
	}
}

// RunNow performs a single collection and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running garbage collection (manual trigger)...")
	return c.collect(ctx)
}

// collect performs a single garbage collection run:
//  1. List temporary uploads older than MinAge
//  2. Delete them, unless DryRun is set
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: c.now()}
	cutoff := stats.StartTime.Add(-c.config.MinAge)

	stale, err := c.backend.ListStale(ctx, cutoff)
	if err != nil {
		return stats, fmt.Errorf("failed to list stale uploads: %w", err)
	}
	stats.StaleCount = uint64(len(stale))

	if len(stale) == 0 {
		stats.EndTime = c.now()
		return stats, nil
	}

	names := make([]string, len(stale))
	for i, entry := range stale {
		names[i] = entry.Name
		stats.StaleBytes += uint64(entry.Size)
	}

	if c.config.DryRun {
		logger.Info("GC: DRY RUN - Would delete %d stale uploads (%d bytes):", stats.StaleCount, stats.StaleBytes)
		for i, entry := range stale {
			if i == 10 {
				logger.Info("  ... and %d more", len(stale)-10)
				break
			}
			logger.Info("  - %s (modified %s)", entry.Name, entry.ModTime.Format(time.RFC3339))
		}
		stats.EndTime = c.now()
		return stats, nil
	}

	failures, err := c.backend.RemoveStale(ctx, names)
	stats.FailedCount = uint64(len(failures))
	stats.DeletedCount = stats.StaleCount - stats.FailedCount
	for name, ferr := range failures {
		logger.Debug("GC: Failed to delete %s: %v", name, ferr)
	}
	stats.EndTime = c.now()

	if err != nil {
		return stats, fmt.Errorf("failed to remove stale uploads: %w", err)
	}
	return stats, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime    time.Time
	EndTime      time.Time
	StaleCount   uint64 // Stale uploads found
	StaleBytes   uint64 // Total size of stale uploads
	DeletedCount uint64
	FailedCount  uint64
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("stale=%d bytes=%d deleted=%d failed=%d duration=%s",
		s.StaleCount, s.StaleBytes, s.DeletedCount, s.FailedCount, s.Duration())
}
