// Package memory is an in-process storage backend.
//
// Content lives only as long as the Backend. It cannot be shared across
// worker processes, so it is only usable with the thread strategy.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/marmos91/filetransfer/pkg/storage"
)

type Backend struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func New() *Backend {
	return &Backend{files: make(map[string][]byte)}
}

func (b *Backend) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.files))
	for name := range b.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (b *Backend) Read(ctx context.Context, name string) ([]byte, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.files[name]
	if !ok {
		return nil, storage.NotFound(name)
	}

	// Stored slices are never mutated, callers get their own copy.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (b *Backend) Write(ctx context.Context, name string, data []byte) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[name] = stored
	return nil
}

func (b *Backend) Remove(ctx context.Context, name string) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.files[name]; !ok {
		return storage.NotFound(name)
	}
	delete(b.files, name)
	return nil
}

// Close drops all stored content.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files = make(map[string][]byte)
	return nil
}

var _ storage.Backend = (*Backend)(nil)
