// Package metrics provides Prometheus metrics for the file transfer server.
//
// Metrics are optional. When the registry has not been initialized every
// constructor returns a no-op implementation, so the server runs identically
// with or without metrics enabled.
//
// Usage:
//
//	metrics.InitRegistry()
//	serverMetrics := prometheus.NewServerMetrics()
//	srv := server.New(cfg, backend, server.WithMetrics(serverMetrics))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry with Go runtime and process
// collectors. Subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global registry, or nil if InitRegistry was never
// called.
func GetRegistry() *prometheus.Registry {
	return registry
}

func IsEnabled() bool {
	return GetRegistry() != nil
}
