package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/pkg/storage"
)

// Key layout:
//
//	m:<name>              manifest (JSON) of the current version of <name>
//	c:<gen>:<index>       content chunk <index> of generation <gen>
//
// A file larger than a single transaction is written as chunks under a fresh
// generation, then published by swapping its manifest in one small
// transaction. Readers resolve the manifest and its chunks inside one
// snapshot, so they never see a partially written file.
const (
	manifestPrefix = "m:"
	chunkPrefix    = "c:"

	// DefaultChunkSize keeps every value well under the in-memory value
	// threshold and the transaction size limit.
	DefaultChunkSize = 256 << 10

	maxCommitAttempts = 10
)

type manifest struct {
	Generation string `json:"gen"`
	Size       int    `json:"size"`
	Chunks     int    `json:"chunks"`
}

// Config configures a Badger backend.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database in memory only.
	InMemory bool

	// ChunkSize is the size of content chunks. Defaults to DefaultChunkSize.
	ChunkSize int
}

// Backend stores files in an embedded BadgerDB key space.
//
// Badger takes an exclusive lock on its directory, so a database can only be
// opened by one process at a time.
type Backend struct {
	db        *badger.DB
	chunkSize int
}

func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger backend: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Backend{db: db, chunkSize: chunkSize}, nil
}

func manifestKey(name string) []byte {
	return []byte(manifestPrefix + name)
}

func generationPrefix(gen string) []byte {
	return []byte(chunkPrefix + gen + ":")
}

func chunkKey(gen string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", chunkPrefix, gen, index))
}

func getManifest(txn *badger.Txn, name string) (*manifest, error) {
	item, err := txn.Get(manifestKey(name))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.NotFound(name)
		}
		return nil, fmt.Errorf("failed to get manifest for %s: %w", name, err)
	}

	var m manifest
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest for %s: %w", name, err)
	}
	return &m, nil
}

func (b *Backend) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := []string{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(manifestPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			names = append(names, string(key[len(manifestPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	// Badger iterates keys in byte order, which is already sorted.
	return names, nil
}

func (b *Backend) Read(ctx context.Context, name string) ([]byte, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		m, err := getManifest(txn, name)
		if err != nil {
			return err
		}

		data = make([]byte, 0, m.Size)
		for i := 0; i < m.Chunks; i++ {
			item, err := txn.Get(chunkKey(m.Generation, i))
			if err != nil {
				return fmt.Errorf("failed to get chunk %d of %s: %w", i, name, err)
			}
			err = item.Value(func(val []byte) error {
				data = append(data, val...)
				return nil
			})
			if err != nil {
				return err
			}
		}

		if len(data) != m.Size {
			return fmt.Errorf("content of %s is %d bytes, manifest says %d", name, len(data), m.Size)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (b *Backend) Write(ctx context.Context, name string, data []byte) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// ========================================================================
	// Step 1: Write chunks under a fresh generation
	// ========================================================================

	gen := uuid.NewString()
	chunks := 0

	wb := b.db.NewWriteBatch()
	for off := 0; off < len(data); off += b.chunkSize {
		end := off + b.chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := wb.Set(chunkKey(gen, chunks), data[off:end]); err != nil {
			wb.Cancel()
			return fmt.Errorf("failed to stage chunk %d of %s: %w", chunks, name, err)
		}
		chunks++
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to write chunks of %s: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		b.dropGeneration(gen)
		return err
	}

	// ========================================================================
	// Step 2: Publish the manifest, retrying on concurrent commits
	// ========================================================================

	encoded, err := json.Marshal(manifest{Generation: gen, Size: len(data), Chunks: chunks})
	if err != nil {
		b.dropGeneration(gen)
		return fmt.Errorf("failed to encode manifest for %s: %w", name, err)
	}

	var previous string
	for attempt := 1; ; attempt++ {
		previous = ""
		err = b.db.Update(func(txn *badger.Txn) error {
			old, err := getManifest(txn, name)
			switch {
			case err == nil:
				previous = old.Generation
			case !errors.Is(err, storage.ErrNotFound):
				return err
			}
			return txn.Set(manifestKey(name), encoded)
		})
		if err == nil {
			break
		}
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxCommitAttempts {
			b.dropGeneration(gen)
			return fmt.Errorf("failed to commit %s: %w", name, err)
		}
	}

	// ========================================================================
	// Step 3: Drop the replaced generation
	// ========================================================================

	if previous != "" {
		b.dropGeneration(previous)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, name string) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var gen string
	err := b.db.Update(func(txn *badger.Txn) error {
		m, err := getManifest(txn, name)
		if err != nil {
			return err
		}
		gen = m.Generation
		return txn.Delete(manifestKey(name))
	})
	if err != nil {
		return err
	}

	b.dropGeneration(gen)
	return nil
}

// dropGeneration deletes the chunks of gen. Failures only leak space and
// are logged.
func (b *Backend) dropGeneration(gen string) {
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = generationPrefix(gen)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		logger.Warn("badger: failed to scan generation %s: %v", gen, err)
		return
	}

	wb := b.db.NewWriteBatch()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			wb.Cancel()
			logger.Warn("badger: failed to delete generation %s: %v", gen, err)
			return
		}
	}
	if err := wb.Flush(); err != nil {
		logger.Warn("badger: failed to delete generation %s: %v", gen, err)
	}
}

func (b *Backend) Close() error {
	return b.db.Close()
}

var _ storage.Backend = (*Backend)(nil)
