package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/marmos91/filetransfer/pkg/storage"
)

// Backend stores files as regular files directly under a root directory.
//
// Writes are atomic: content goes to a temporary file in the same directory
// (named with storage.TempPrefix) which is then renamed over the target. A
// concurrent Read sees either the old content or the new one, never a mix.
//
// Thread Safety:
// All methods are safe for concurrent use. Several Backend instances (for
// example one per worker process) may share the same root directory.
type Backend struct {
	root string
}

// New creates a filesystem backend rooted at root.
//
// The root directory is created with permissions 0755 if it does not exist.
//
// Parameters:
//   - ctx: Context for cancellation
//   - root: Directory holding the stored files
//
// Returns:
//   - *Backend: Initialized backend
//   - error: Returns error if the directory cannot be created or ctx is done
func New(ctx context.Context, root string) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if root == "" {
		return nil, fmt.Errorf("filesystem backend: root path is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &Backend{root: abs}, nil
}

// Root returns the absolute root directory.
func (b *Backend) Root() string {
	return b.root
}

func (b *Backend) path(name string) string {
	return filepath.Join(b.root, name)
}

// List returns the names of the regular files under the root, sorted.
//
// Subdirectories, symlinks and in-progress uploads are skipped.
func (b *Backend) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if strings.HasPrefix(entry.Name(), storage.TempPrefix) {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.Strings(names)
	return names, nil
}

// Read returns the content of name.
//
// Returns storage.ErrNotFound when the file does not exist or is not a
// regular file.
func (b *Backend) Read(ctx context.Context, name string) ([]byte, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Lstat(b.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.NotFound(name)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, storage.NotFound(name)
	}

	data, err := os.ReadFile(b.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.NotFound(name)
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	return data, nil
}

// Write atomically creates or replaces name with data.
//
// Context Cancellation:
// The context is checked before the temporary file is created and again
// before it is renamed into place. A cancelled write leaves no file behind.
func (b *Backend) Write(ctx context.Context, name string, data []byte) error {
	// ========================================================================
	// Step 1: Validate and check context
	// ========================================================================

	if err := storage.ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// ========================================================================
	// Step 2: Write content to a temporary file in the root directory
	// ========================================================================

	tmp, err := os.CreateTemp(b.root, storage.TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", name, err)
	}

	// ========================================================================
	// Step 3: Rename over the target
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, b.path(name)); err != nil {
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	committed = true

	return nil
}

// Remove deletes name.
//
// Returns storage.ErrNotFound when the file does not exist.
func (b *Backend) Remove(ctx context.Context, name string) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Lstat(b.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.NotFound(name)
		}
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if info.IsDir() {
		return storage.NotFound(name)
	}

	if err := os.Remove(b.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.NotFound(name)
		}
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}

	return nil
}

// ListStale returns temporary upload files last modified before cutoff.
// A live upload rewrites its temporary file continuously, so only uploads
// abandoned by a crashed writer stay older than the cutoff.
func (b *Backend) ListStale(ctx context.Context, cutoff time.Time) ([]storage.StaleEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}

	var stale []storage.StaleEntry
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), storage.TempPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Committed or removed since ReadDir.
			continue
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, storage.StaleEntry{
				Name:    entry.Name(),
				ModTime: info.ModTime(),
				Size:    info.Size(),
			})
		}
	}

	return stale, nil
}

// RemoveStale deletes temporary upload files. Names without the temporary
// prefix are refused so stored files can never be collected.
func (b *Backend) RemoveStale(ctx context.Context, names []string) (map[string]error, error) {
	failures := make(map[string]error)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return failures, err
		}

		if !strings.HasPrefix(name, storage.TempPrefix) || strings.ContainsAny(name, "/\\") {
			failures[name] = fmt.Errorf("%w: %q is not a temporary upload", storage.ErrInvalidName, name)
			continue
		}

		if err := os.Remove(b.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			failures[name] = err
		}
	}

	return failures, nil
}

// Close is a no-op. The filesystem backend holds no open handles.
func (b *Backend) Close() error {
	return nil
}

var (
	_ storage.Backend     = (*Backend)(nil)
	_ storage.Collectable = (*Backend)(nil)
)
