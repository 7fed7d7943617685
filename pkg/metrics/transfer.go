package metrics

import (
	"time"
)

// Direction labels for transferred bytes.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// ServerMetrics records connection and request activity of the server.
//
// Implementations must be safe for concurrent use.
type ServerMetrics interface {
	// RecordRequest records a completed request. status is "OK" or "ERROR",
	// errorCode is the error class ("" on success).
	RecordRequest(command, status, errorCode string, duration time.Duration)

	// RecordRequestStart and RecordRequestEnd bracket a dispatch to track
	// requests in flight.
	RecordRequestStart(command string)
	RecordRequestEnd(command string)

	// RecordBytesTransferred records payload bytes received or sent.
	RecordBytesTransferred(direction string, bytes int64)

	SetActiveConnections(count int32)

	// SetBusyWorkers reports how many worker slots are held.
	SetBusyWorkers(count int32)

	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
}

type noopServerMetrics struct{}

// NewNoopServerMetrics returns a ServerMetrics that discards everything.
func NewNoopServerMetrics() ServerMetrics {
	return noopServerMetrics{}
}

func (noopServerMetrics) RecordRequest(string, string, string, time.Duration) {}
func (noopServerMetrics) RecordRequestStart(string)                           {}
func (noopServerMetrics) RecordRequestEnd(string)                             {}
func (noopServerMetrics) RecordBytesTransferred(string, int64)                {}
func (noopServerMetrics) SetActiveConnections(int32)                          {}
func (noopServerMetrics) SetBusyWorkers(int32)                                {}
func (noopServerMetrics) RecordConnectionAccepted()                           {}
func (noopServerMetrics) RecordConnectionClosed()                             {}
func (noopServerMetrics) RecordConnectionForceClosed()                        {}
