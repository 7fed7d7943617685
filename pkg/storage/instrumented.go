package storage

import (
	"context"
	"time"

	"github.com/marmos91/filetransfer/pkg/metrics"
)

// Operation names reported to metrics.StorageMetrics.
const (
	OpList   = "list"
	OpRead   = "read"
	OpWrite  = "write"
	OpRemove = "remove"
)

// instrumented records every call of the wrapped backend.
type instrumented struct {
	Backend
	metrics metrics.StorageMetrics
}

// Instrument wraps backend so every operation is reported to m. A nil m
// returns backend unchanged.
func Instrument(backend Backend, m metrics.StorageMetrics) Backend {
	if m == nil {
		return backend
	}
	return &instrumented{Backend: backend, metrics: m}
}

// Unwrap returns the backend underneath any instrumentation.
func Unwrap(backend Backend) Backend {
	for {
		i, ok := backend.(*instrumented)
		if !ok {
			return backend
		}
		backend = i.Backend
	}
}

func (b *instrumented) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	names, err := b.Backend.List(ctx)
	b.metrics.RecordOperation(OpList, time.Since(start), err)
	return names, err
}

func (b *instrumented) Read(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	data, err := b.Backend.Read(ctx, name)
	b.metrics.RecordOperation(OpRead, time.Since(start), err)
	if err == nil {
		b.metrics.RecordBytes(OpRead, int64(len(data)))
	}
	return data, err
}

func (b *instrumented) Write(ctx context.Context, name string, data []byte) error {
	start := time.Now()
	err := b.Backend.Write(ctx, name, data)
	b.metrics.RecordOperation(OpWrite, time.Since(start), err)
	if err == nil {
		b.metrics.RecordBytes(OpWrite, int64(len(data)))
	}
	return err
}

func (b *instrumented) Remove(ctx context.Context, name string) error {
	start := time.Now()
	err := b.Backend.Remove(ctx, name)
	b.metrics.RecordOperation(OpRemove, time.Since(start), err)
	return err
}
