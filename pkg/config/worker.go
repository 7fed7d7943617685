package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// WorkerConfigEnv carries the resolved configuration from the server to its
// worker processes, so flags and environment overrides apply there too.
const WorkerConfigEnv = "FTSERVER_WORKER_CONFIG"

// EncodeWorkerEnv renders cfg as a WorkerConfigEnv assignment.
func EncodeWorkerEnv(cfg *Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode worker config: %w", err)
	}
	return WorkerConfigEnv + "=" + string(data), nil
}

// LoadWorker reads the configuration handed down by the server.
func LoadWorker() (*Config, error) {
	raw := os.Getenv(WorkerConfigEnv)
	if raw == "" {
		return nil, fmt.Errorf("%s is not set: worker must be started by ftserver serve", WorkerConfigEnv)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode worker config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("worker configuration validation failed: %w", err)
	}
	return &cfg, nil
}
