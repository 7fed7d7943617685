package prometheus

import (
	"errors"
	"time"

	"github.com/marmos91/filetransfer/pkg/metrics"
	"github.com/marmos91/filetransfer/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storageMetrics is the Prometheus implementation of metrics.StorageMetrics.
type storageMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
}

// NewStorageMetrics registers the storage metrics on the global registry,
// labelled with the backend type. Returns a no-op implementation when
// metrics are disabled.
func NewStorageMetrics(storageType string) metrics.StorageMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopStorageMetrics()
	}
	return NewStorageMetricsWith(metrics.GetRegistry(), storageType)
}

// NewStorageMetricsWith registers the storage metrics on reg.
func NewStorageMetricsWith(reg prometheus.Registerer, storageType string) metrics.StorageMetrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"storage_type": storageType}

	return &storageMetrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "filetransfer_storage_operations_total",
				Help:        "Total number of storage operations by operation and status",
				ConstLabels: labels,
			},
			[]string{"operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "filetransfer_storage_operation_duration_seconds",
				Help:        "Duration of storage operations in seconds",
				ConstLabels: labels,
				Buckets: []float64{
					0.0001, // 100µs
					0.001,  // 1ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
					30.0,   // 30s
				},
			},
			[]string{"operation"},
		),
		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "filetransfer_storage_bytes_total",
				Help:        "Total file content bytes read from and written to storage",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
	}
}

func (m *storageMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *storageMetrics) RecordBytes(operation string, bytes int64) {
	m.bytesTotal.WithLabelValues(operation).Add(float64(bytes))
}
