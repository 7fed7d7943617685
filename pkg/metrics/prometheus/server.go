package prometheus

import (
	"time"

	"github.com/marmos91/filetransfer/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serverMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	requestsInFlight       *prometheus.GaugeVec
	bytesTransferred       *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	busyWorkers            prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
}

// NewServerMetrics registers the server metrics on the global registry.
// Returns a no-op implementation when metrics are disabled.
func NewServerMetrics() metrics.ServerMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopServerMetrics()
	}
	return NewServerMetricsWith(metrics.GetRegistry())
}

// NewServerMetricsWith registers the server metrics on reg.
func NewServerMetricsWith(reg prometheus.Registerer) metrics.ServerMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filetransfer_requests_total",
				Help: "Total number of requests by command, status and error class",
			},
			[]string{"command", "status", "error_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filetransfer_request_duration_milliseconds",
				Help:    "Time spent dispatching a request",
				Buckets: []float64{1, 10, 100, 1000, 10000, 60000},
			},
			[]string{"command"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "filetransfer_requests_in_flight",
				Help: "Requests currently being dispatched",
			},
			[]string{"command"},
		),
		bytesTransferred: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filetransfer_bytes_transferred_total",
				Help: "File content bytes received (in) and sent (out)",
			},
			[]string{"direction"},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "filetransfer_active_connections",
				Help: "Connections currently admitted",
			},
		),
		busyWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "filetransfer_busy_workers",
				Help: "Worker slots currently held",
			},
		),
		connectionsAccepted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "filetransfer_connections_accepted_total",
				Help: "Total connections accepted",
			},
		),
		connectionsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "filetransfer_connections_closed_total",
				Help: "Total connections closed",
			},
		),
		connectionsForceClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "filetransfer_connections_force_closed_total",
				Help: "Connections force-closed after the shutdown timeout",
			},
		),
	}
}

func (m *serverMetrics) RecordRequest(command, status, errorCode string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(command, status, errorCode).Inc()
	m.requestDuration.WithLabelValues(command).Observe(float64(duration) / float64(time.Millisecond))
}

func (m *serverMetrics) RecordRequestStart(command string) {
	m.requestsInFlight.WithLabelValues(command).Inc()
}

func (m *serverMetrics) RecordRequestEnd(command string) {
	m.requestsInFlight.WithLabelValues(command).Dec()
}

func (m *serverMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *serverMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *serverMetrics) SetBusyWorkers(count int32) {
	m.busyWorkers.Set(float64(count))
}

func (m *serverMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *serverMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *serverMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}
