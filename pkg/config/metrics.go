package config

import (
	"github.com/marmos91/filetransfer/pkg/metrics"
	promMetrics "github.com/marmos91/filetransfer/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// ServerMetrics is the collector for the file server (never nil, uses noop if disabled)
	ServerMetrics metrics.ServerMetrics

	// StorageMetrics is the collector for backend operations (never nil, uses noop if disabled)
	StorageMetrics metrics.StorageMetrics
}

// InitializeMetrics creates all metrics components based on configuration.
//
// If metrics are enabled:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed server and storage metrics
//
// If metrics are disabled it returns a nil server and no-op metrics.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Server:         nil,
			ServerMetrics:  metrics.NewNoopServerMetrics(),
			StorageMetrics: metrics.NewNoopStorageMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:         server,
		ServerMetrics:  promMetrics.NewServerMetrics(),
		StorageMetrics: promMetrics.NewStorageMetrics(cfg.Storage.Type),
	}
}
