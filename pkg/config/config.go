package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/filetransfer/pkg/gc"
	"github.com/marmos91/filetransfer/pkg/server"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FTSERVER_SERVER_PORT.
const EnvPrefix = "FTSERVER"

// Config represents the complete ftserver configuration.
//
// This structure captures all configurable aspects of the server:
//   - Logging configuration
//   - Listener, capacity and worker strategy
//   - Storage backend selection and configuration (backend-specific)
//   - Prometheus metrics endpoint
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FTSERVER_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Storage Configuration Pattern:
// Each backend defines its own options. The Storage section carries one map
// per backend type (storage.filesystem, storage.s3, ...) and only the section
// matching storage.type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" json:"logging" yaml:"logging"`

	// Server contains listener, capacity and connection settings
	Server server.Config `mapstructure:"server" json:"server" yaml:"server"`

	// Storage specifies the backend type and backend-specific configuration
	Storage StorageConfig `mapstructure:"storage" json:"storage" yaml:"storage"`

	// GC removes temporary files left by interrupted uploads
	GC gc.Config `mapstructure:"gc" json:"gc" yaml:"gc"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" json:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" json:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" json:"output" yaml:"output" validate:"required"`
}

// StorageConfig specifies the storage backend.
//
// The Type field determines which backend is used. Only the corresponding
// type-specific section is read.
type StorageConfig struct {
	// Type specifies which backend implementation to use
	// Valid values: filesystem, memory, s3, badger
	Type string `mapstructure:"type" json:"type" yaml:"type" validate:"required,oneof=filesystem memory s3 badger" jsonschema:"enum=filesystem,enum=memory,enum=s3,enum=badger"`

	// Filesystem contains filesystem options (path)
	Filesystem map[string]any `mapstructure:"filesystem" json:"filesystem,omitempty" yaml:"filesystem,omitempty"`

	// Memory contains memory options (none yet)
	Memory map[string]any `mapstructure:"memory" json:"memory,omitempty" yaml:"memory,omitempty"`

	// S3 contains S3 options (region, bucket, key_prefix, endpoint,
	// access_key_id, secret_access_key, max_retries)
	S3 map[string]any `mapstructure:"s3" json:"s3,omitempty" yaml:"s3,omitempty"`

	// Badger contains BadgerDB options (db_path, in_memory, chunk_size)
	Badger map[string]any `mapstructure:"badger" json:"badger,omitempty" yaml:"badger,omitempty"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`

	// Port is the HTTP port serving /metrics
	Port int `mapstructure:"port" json:"port" yaml:"port" validate:"min=0,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FTSERVER_*)
//  2. Configuration file
//  3. Default values
//
// A missing configuration file is not an error: defaults are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables, defaults and the config file
// location.
func setupViper(v *viper.Viper, configPath string) {
	// Example: FTSERVER_SERVER_CAPACITY=20
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment overrides only apply to keys viper knows about.
	registerDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/ftserver/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/ftserver, ~/.config/ftserver, or "."
// when no home directory can be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "ftserver")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "ftserver")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
