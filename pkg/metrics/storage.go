package metrics

import (
	"time"
)

// StorageMetrics provides observability for storage backend operations.
//
// This interface is optional - backends that are not instrumented proceed
// without metrics collection.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewStorageMetrics("filesystem")
//	backend = storage.Instrument(backend, m)
type StorageMetrics interface {
	// RecordOperation records a completed backend operation.
	//
	// Parameters:
	//   - operation: Operation name ("list", "read", "write", "remove")
	//   - duration: Time taken to complete the operation
	//   - err: Error if operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordBytes records file content read from or written to the backend.
	RecordBytes(operation string, bytes int64)
}

// noopStorageMetrics is a no-op implementation of StorageMetrics.
type noopStorageMetrics struct{}

// NewNoopStorageMetrics returns a StorageMetrics that discards everything.
func NewNoopStorageMetrics() StorageMetrics {
	return noopStorageMetrics{}
}

func (noopStorageMetrics) RecordOperation(string, time.Duration, error) {}
func (noopStorageMetrics) RecordBytes(string, int64)                    {}
