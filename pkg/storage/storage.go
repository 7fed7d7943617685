// Package storage defines the flat file namespace the server reads and
// writes.
//
// A Backend addresses files by bare name under a single root (a directory,
// a bucket prefix, a key space). There are no directories: names containing
// path separators are rejected.
//
// Implementations must be safe for concurrent use. Concurrent writes to the
// same name race and the last one to complete wins, but a reader never
// observes a partially written file.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the named file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName is returned for names that cannot address a flat file.
	ErrInvalidName = errors.New("invalid file name")
)

// TempPrefix marks in-progress uploads. Names with this prefix are reserved
// and never listed.
const TempPrefix = ".upload-"

// Backend is the storage collaborator of the file transfer server.
type Backend interface {
	// List returns the names of all stored files in ascending order.
	List(ctx context.Context) ([]string, error)

	// Read returns the full content of name, or ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write creates or replaces name with data.
	Write(ctx context.Context, name string, data []byte) error

	// Remove deletes name, or returns ErrNotFound.
	Remove(ctx context.Context, name string) error

	// Close releases resources held by the backend.
	Close() error
}

// ValidateName checks that name addresses a single flat file.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidName, name)
	case strings.HasPrefix(name, TempPrefix):
		return fmt.Errorf("%w: %q uses the reserved prefix %q", ErrInvalidName, name, TempPrefix)
	}
	return nil
}

// NotFound wraps ErrNotFound with the missing name.
func NotFound(name string) error {
	return fmt.Errorf("%s: %w", name, ErrNotFound)
}

// StaleEntry is a leftover of an interrupted upload.
type StaleEntry struct {
	Name    string
	ModTime time.Time
	Size    int64
}

// Collectable is implemented by backends whose interrupted writes can leave
// garbage behind, such as temporary files of a crashed worker process.
type Collectable interface {
	// ListStale returns leftovers last modified before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]StaleEntry, error)

	// RemoveStale deletes the named leftovers. The returned map holds the
	// entries that could not be removed.
	RemoveStale(ctx context.Context, names []string) (map[string]error, error)
}
