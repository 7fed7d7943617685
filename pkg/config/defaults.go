package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/filetransfer/pkg/gc"
	"github.com/marmos91/filetransfer/pkg/server"
	"github.com/spf13/viper"
)

const (
	DefaultStorageType = "filesystem"
	DefaultMetricsPort = 9090
)

// DefaultStoragePath is where the filesystem backend keeps files unless
// configured otherwise.
var DefaultStoragePath = filepath.Join(os.TempDir(), "ftserver-files")

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the factories
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	cfg.Server.ApplyDefaults()
	applyStorageDefaults(&cfg.Storage)
	cfg.GC.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyStorageDefaults sets storage defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = DefaultStorageType
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = DefaultStoragePath
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a Config with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			Filesystem: make(map[string]any),
			S3: map[string]any{
				"region":      "us-east-1",
				"bucket":      "",
				"key_prefix":  "",
				"max_retries": 10,
			},
			Badger: map[string]any{
				"db_path": filepath.Join(os.TempDir(), "ftserver-badger"),
			},
		},
		GC: gc.Config{Enabled: true},
	}

	ApplyDefaults(cfg)
	return cfg
}

// registerDefaults makes every scalar key known to viper so environment
// variables can override keys absent from the config file.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("server.bind_address", server.DefaultBindAddress)
	v.SetDefault("server.port", server.DefaultPort)
	v.SetDefault("server.capacity", server.DefaultCapacity)
	v.SetDefault("server.strategy", string(server.StrategyThread))
	v.SetDefault("server.chunk_size", 0)
	v.SetDefault("server.idle_timeout", server.DefaultIdleTimeout)
	v.SetDefault("server.write_timeout", server.DefaultWriteTimeout)
	v.SetDefault("server.max_request_bytes", server.DefaultMaxRequestBytes)
	v.SetDefault("server.shutdown_timeout", server.DefaultShutdownTimeout)
	v.SetDefault("server.accept_rate", 0)
	v.SetDefault("server.accept_burst", 0)
	v.SetDefault("server.metrics_log_interval", 0)

	v.SetDefault("storage.type", DefaultStorageType)
	v.SetDefault("storage.filesystem.path", DefaultStoragePath)
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.key_prefix", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.max_retries", 0)
	v.SetDefault("storage.badger.db_path", "")
	v.SetDefault("storage.badger.in_memory", false)

	v.SetDefault("gc.enabled", true)
	v.SetDefault("gc.interval", gc.DefaultInterval)
	v.SetDefault("gc.min_age", gc.DefaultMinAge)
	v.SetDefault("gc.dry_run", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", DefaultMetricsPort)
}
