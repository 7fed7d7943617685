package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/pkg/storage"
	storageBadger "github.com/marmos91/filetransfer/pkg/storage/badger"
	storageFs "github.com/marmos91/filetransfer/pkg/storage/fs"
	storageMemory "github.com/marmos91/filetransfer/pkg/storage/memory"
	storageS3 "github.com/marmos91/filetransfer/pkg/storage/s3"
	"github.com/mitchellh/mapstructure"
)

// DefaultS3MaxRetries is the retry budget for transient S3 failures.
const DefaultS3MaxRetries = 10

// CreateBackend creates a storage backend based on configuration.
//
// The Type field selects the implementation, then the type-specific section
// is decoded and passed to the backend's constructor.
//
// Supported types:
//   - "filesystem": pkg/storage/fs (one directory, shared by worker processes)
//   - "memory": pkg/storage/memory (ephemeral, thread strategy only)
//   - "s3": pkg/storage/s3 (Amazon S3 or compatible storage)
//   - "badger": pkg/storage/badger (embedded BadgerDB, thread strategy only)
func CreateBackend(ctx context.Context, cfg *StorageConfig) (storage.Backend, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemBackend(ctx, cfg.Filesystem)
	case "memory":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return storageMemory.New(), nil
	case "s3":
		return createS3Backend(ctx, cfg.S3)
	case "badger":
		return createBadgerBackend(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown storage type: %q (supported: filesystem, memory, s3, badger)", cfg.Type)
	}
}

// decodeOptions decodes a backend section. Values coming from environment
// variables are strings, so weak typing is enabled.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// createFilesystemBackend creates a directory-backed backend.
func createFilesystemBackend(ctx context.Context, options map[string]any) (storage.Backend, error) {
	type FilesystemBackendConfig struct {
		Path string `mapstructure:"path"`
	}

	var backendCfg FilesystemBackendConfig
	if err := decodeOptions(options, &backendCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem storage config: %w", err)
	}

	if backendCfg.Path == "" {
		return nil, fmt.Errorf("filesystem storage: path is required")
	}

	backend, err := storageFs.New(ctx, backendCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	logger.Info("Filesystem storage initialized: path=%s", backend.Root())
	return backend, nil
}

// S3Options are the options of the s3 storage section.
type S3Options struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// NewS3Client builds an S3 client from the storage options.
//
// A custom endpoint (MinIO, Localstack) switches to path-style addressing.
// Static credentials are used when both keys are set, otherwise the default
// AWS credential chain applies.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	if opts.Region == "" {
		return nil, fmt.Errorf("s3 storage: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultS3MaxRetries
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return client, nil
}

// createS3Backend creates an S3-backed backend.
func createS3Backend(ctx context.Context, options map[string]any) (storage.Backend, error) {
	var opts S3Options
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode s3 storage config: %w", err)
	}

	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	client, err := NewS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	backend, err := storageS3.New(ctx, storageS3.Config{
		Client:    client,
		Bucket:    opts.Bucket,
		KeyPrefix: opts.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 storage: %w", err)
	}

	logger.Info("S3 storage initialized: bucket=%s, region=%s, prefix=%s",
		opts.Bucket, opts.Region, opts.KeyPrefix)

	return backend, nil
}

// createBadgerBackend creates a BadgerDB-backed backend.
func createBadgerBackend(ctx context.Context, options map[string]any) (storage.Backend, error) {
	type BadgerBackendOptions struct {
		DBPath    string `mapstructure:"db_path"`
		InMemory  bool   `mapstructure:"in_memory"`
		ChunkSize int    `mapstructure:"chunk_size"`
	}

	var opts BadgerBackendOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode badger storage config: %w", err)
	}

	if opts.DBPath == "" && !opts.InMemory {
		return nil, fmt.Errorf("badger storage: db_path is required")
	}

	backend, err := storageBadger.New(ctx, storageBadger.Config{
		Path:      opts.DBPath,
		InMemory:  opts.InMemory,
		ChunkSize: opts.ChunkSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger storage: %w", err)
	}

	if opts.InMemory {
		logger.Info("Badger storage initialized in memory")
	} else {
		logger.Info("Badger storage initialized: db_path=%s", opts.DBPath)
	}
	return backend, nil
}
