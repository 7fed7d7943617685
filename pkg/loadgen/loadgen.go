// Package loadgen drives concurrent upload and download load against a file
// transfer server and records per-scenario results.
//
// A scenario runs N clients at once, each on its own connection, all moving
// the same volume. Download scenarios seed the volume on the server with a
// single upload first. Results are appended to a CSV report with AppendResults.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/pkg/client"
	"golang.org/x/sync/errgroup"
)

const (
	OperationUpload   = "upload"
	OperationDownload = "download"
)

// DefaultOperations and DefaultClientCounts form the default scenario matrix
// together with DefaultVolumes.
var (
	DefaultOperations   = []string{OperationDownload, OperationUpload}
	DefaultClientCounts = []int{1, 5, 50}
)

// Config configures a stress run.
type Config struct {
	// Client is the connection configuration shared by every simulated client.
	Client client.Config

	// Dir holds the generated volumes.
	Dir string

	Operations   []string
	Volumes      []Volume
	ClientCounts []int

	// ServerPoolSize is the capacity the target server was started with. It
	// is only recorded in the report.
	ServerPoolSize int

	// Cleanup deletes the files uploaded by the run when it finishes.
	Cleanup bool
}

func (c *Config) applyDefaults() {
	if c.Dir == "" {
		c.Dir = "."
	}
	if len(c.Operations) == 0 {
		c.Operations = DefaultOperations
	}
	if len(c.Volumes) == 0 {
		c.Volumes = DefaultVolumes
	}
	if len(c.ClientCounts) == 0 {
		c.ClientCounts = DefaultClientCounts
	}
	if c.ServerPoolSize <= 0 {
		c.ServerPoolSize = 1
	}
}

func (c *Config) validate() error {
	for _, op := range c.Operations {
		if op != OperationUpload && op != OperationDownload {
			return fmt.Errorf("unknown operation %q (supported: upload, download)", op)
		}
	}
	for _, n := range c.ClientCounts {
		if n <= 0 {
			return fmt.Errorf("client count must be positive, got %d", n)
		}
	}
	return nil
}

// Result summarizes one scenario.
type Result struct {
	Operation      string
	Volume         string
	Clients        int
	ServerPoolSize int

	// TotalTime is the wall time of the whole scenario.
	TotalTime time.Duration

	// AvgClientTime is the mean per-client time, failures included.
	AvgClientTime time.Duration

	// AvgThroughput is the mean bytes per second of successful clients.
	AvgThroughput float64

	ClientSuccess int
	ClientFail    int

	// The server does not report its own counters, so these mirror the
	// client-side counts.
	ServerSuccess int
	ServerFail    int
}

// clientOutcome is the measurement of one simulated client.
type clientOutcome struct {
	elapsed    time.Duration
	throughput float64
	err        error
}

// Runner executes stress scenarios.
type Runner struct {
	config Config
	runID  string

	mu       sync.Mutex
	uploaded map[string]struct{}
}

// NewRunner validates cfg and returns a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Runner{
		config:   cfg,
		runID:    uuid.NewString()[:8],
		uploaded: make(map[string]struct{}),
	}, nil
}

// Run generates the volumes and executes every operation × volume × client
// count scenario in order.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	if err := GenerateFiles(r.config.Dir, r.config.Volumes); err != nil {
		return nil, err
	}

	if r.config.Cleanup {
		defer r.cleanup()
	}

	var results []Result
	for _, op := range r.config.Operations {
		for _, v := range r.config.Volumes {
			for _, clients := range r.config.ClientCounts {
				if err := ctx.Err(); err != nil {
					return results, err
				}

				res, err := r.RunScenario(ctx, op, v, clients)
				if err != nil {
					return results, err
				}
				results = append(results, res)
			}
		}
	}

	return results, nil
}

// remoteName is the server-side name of a volume for this run.
func (r *Runner) remoteName(v Volume) string {
	return fmt.Sprintf("stress-%s-%s", r.runID, v.Name)
}

// RunScenario runs clients concurrent transfers of volume v. Individual
// client failures are counted in the result; an error is returned only when
// the scenario cannot run at all.
func (r *Runner) RunScenario(ctx context.Context, op string, v Volume, clients int) (Result, error) {
	data, err := os.ReadFile(filepath.Join(r.config.Dir, v.Name))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read volume: %w", err)
	}

	name := r.remoteName(v)
	if op == OperationDownload {
		if err := r.seed(ctx, name, data); err != nil {
			return Result{}, fmt.Errorf("failed to seed %s for download: %w", name, err)
		}
	}

	logger.Info("Testing %s - volume %s | server pool %d, clients %d",
		op, v.Name, r.config.ServerPoolSize, clients)

	outcomes := make([]clientOutcome, clients)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(clients)

	start := time.Now()
	for i := range outcomes {
		i := i // per-iteration copy (Go <1.22 loop semantics)
		g.Go(func() error {
			outcomes[i] = r.transfer(gctx, op, name, data)
			return nil
		})
	}
	_ = g.Wait()
	total := time.Since(start)

	res := summarize(outcomes)
	res.Operation = op
	res.Volume = v.Name
	res.Clients = clients
	res.ServerPoolSize = r.config.ServerPoolSize
	res.TotalTime = total

	if op == OperationUpload && res.ClientSuccess > 0 {
		r.markUploaded(name)
	}

	logger.Info("Results: total_time=%s avg_client_time=%s avg_throughput=%.2f B/s success=%d fail=%d",
		total, res.AvgClientTime, res.AvgThroughput, res.ClientSuccess, res.ClientFail)

	return res, nil
}

// transfer runs one client on its own connection.
func (r *Runner) transfer(ctx context.Context, op, name string, data []byte) clientOutcome {
	start := time.Now()

	c := client.New(r.config.Client)
	defer c.Close()

	var err error
	switch op {
	case OperationUpload:
		_, err = c.Add(ctx, name, data)
	case OperationDownload:
		var got []byte
		got, err = c.Get(ctx, name)
		if err == nil && len(got) != len(data) {
			err = fmt.Errorf("downloaded %d bytes, expected %d", len(got), len(data))
		}
	}

	elapsed := time.Since(start)
	out := clientOutcome{elapsed: elapsed, err: err}
	if err != nil {
		logger.Debug("Client %s of %s failed: %v", op, name, err)
		return out
	}
	if elapsed > 0 {
		out.throughput = float64(len(data)) / elapsed.Seconds()
	}
	return out
}

func (r *Runner) seed(ctx context.Context, name string, data []byte) error {
	r.mu.Lock()
	_, done := r.uploaded[name]
	r.mu.Unlock()
	if done {
		return nil
	}

	c := client.New(r.config.Client)
	defer c.Close()

	if _, err := c.Add(ctx, name, data); err != nil {
		return err
	}
	r.markUploaded(name)
	return nil
}

func (r *Runner) markUploaded(name string) {
	r.mu.Lock()
	r.uploaded[name] = struct{}{}
	r.mu.Unlock()
}

func (r *Runner) cleanup() {
	r.mu.Lock()
	names := make([]string, 0, len(r.uploaded))
	for name := range r.uploaded {
		names = append(names, name)
	}
	r.mu.Unlock()

	if len(names) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c := client.New(r.config.Client)
	defer c.Close()

	for _, name := range names {
		if _, err := c.Delete(ctx, name); err != nil && !client.IsRemote(err) {
			logger.Warn("Failed to delete %s: %v", name, err)
		}
	}
}

func summarize(outcomes []clientOutcome) Result {
	var (
		res        Result
		totalTime  time.Duration
		throughput float64
	)

	for _, o := range outcomes {
		totalTime += o.elapsed
		if o.err != nil {
			res.ClientFail++
			continue
		}
		res.ClientSuccess++
		throughput += o.throughput
	}

	if len(outcomes) > 0 {
		res.AvgClientTime = totalTime / time.Duration(len(outcomes))
	}
	if res.ClientSuccess > 0 {
		res.AvgThroughput = throughput / float64(res.ClientSuccess)
	}
	res.ServerSuccess = res.ClientSuccess
	res.ServerFail = res.ClientFail

	return res
}

// Failures returns an error joining every scenario that had failed clients.
func Failures(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.ClientFail > 0 {
			errs = append(errs, fmt.Errorf("%s %s with %d clients: %d failed",
				r.Operation, r.Volume, r.Clients, r.ClientFail))
		}
	}
	return errors.Join(errs...)
}
