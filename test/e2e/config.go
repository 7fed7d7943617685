package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/filetransfer/pkg/server"
	"github.com/marmos91/filetransfer/pkg/storage"
	storagebadger "github.com/marmos91/filetransfer/pkg/storage/badger"
	storagefs "github.com/marmos91/filetransfer/pkg/storage/fs"
	storagememory "github.com/marmos91/filetransfer/pkg/storage/memory"
	storages3 "github.com/marmos91/filetransfer/pkg/storage/s3"
)

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageMemory     StorageType = "memory"
	StorageFilesystem StorageType = "filesystem"
	StorageBadger     StorageType = "badger"
	StorageS3         StorageType = "s3"
)

// TestContextProvider is an interface for providing test context dependencies
type TestContextProvider interface {
	CreateTempDir(prefix string) string
	GetConfig() *TestConfig
}

// TestConfig holds the configuration for a test run
type TestConfig struct {
	Name     string
	Storage  StorageType
	Strategy server.Strategy
	Capacity int

	// S3-specific fields (set by localstack setup)
	s3Client *s3.Client
	s3Bucket string
}

// String returns a string representation of the configuration
func (tc *TestConfig) String() string {
	return fmt.Sprintf("%s/%s", tc.Strategy, tc.Storage)
}

// CreateBackend creates a storage backend based on the configuration.
//
// root is the directory the filesystem backend serves; the process strategy
// hands the same root to its workers.
func (tc *TestConfig) CreateBackend(ctx context.Context, testCtx TestContextProvider, root string) (storage.Backend, error) {
	switch tc.Storage {
	case StorageMemory:
		return storagememory.New(), nil

	case StorageFilesystem:
		backend, err := storagefs.New(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("failed to create filesystem backend: %w", err)
		}
		return backend, nil

	case StorageBadger:
		dbPath := filepath.Join(testCtx.CreateTempDir("ftserver-badger-*"), "files.db")
		backend, err := storagebadger.New(ctx, storagebadger.Config{Path: dbPath})
		if err != nil {
			return nil, fmt.Errorf("failed to create badger backend: %w", err)
		}
		return backend, nil

	case StorageS3:
		if tc.s3Client == nil {
			return nil, fmt.Errorf("s3 client not initialized")
		}
		backend, err := storages3.New(ctx, storages3.Config{
			Client:    tc.s3Client,
			Bucket:    tc.s3Bucket,
			KeyPrefix: fmt.Sprintf("%s/", filepath.Base(root)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 backend: %w", err)
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", tc.Storage)
	}
}

// AllConfigurations returns every strategy and storage combination the server
// supports. S3 configurations are included only when LOCALSTACK_ENDPOINT is
// set.
func AllConfigurations() []*TestConfig {
	configs := []*TestConfig{
		{Name: "thread-memory", Storage: StorageMemory, Strategy: server.StrategyThread},
		{Name: "thread-filesystem", Storage: StorageFilesystem, Strategy: server.StrategyThread},
		{Name: "thread-badger", Storage: StorageBadger, Strategy: server.StrategyThread},
		{Name: "process-filesystem", Storage: StorageFilesystem, Strategy: server.StrategyProcess},
	}

	if os.Getenv("LOCALSTACK_ENDPOINT") != "" {
		configs = append(configs, S3Configurations()...)
	}

	return configs
}

// S3Configurations returns the configurations backed by S3.
func S3Configurations() []*TestConfig {
	return []*TestConfig{
		{Name: "thread-s3", Storage: StorageS3, Strategy: server.StrategyThread},
	}
}

// SharedConfigurations returns the storage types several servers can share.
func SharedConfigurations() []*TestConfig {
	configs := []*TestConfig{
		{Name: "filesystem", Storage: StorageFilesystem, Strategy: server.StrategyThread},
	}
	if os.Getenv("LOCALSTACK_ENDPOINT") != "" {
		configs = append(configs, S3Configurations()...)
	}
	return configs
}
