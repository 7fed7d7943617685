package server

import (
	"testing"
	"time"

	"github.com/marmos91/filetransfer/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, "0.0.0.0", cfg.BindAddress)
	assert.Equal(t, 13337, cfg.Port)
	assert.Equal(t, 10, cfg.Capacity)
	assert.Equal(t, StrategyThread, cfg.Strategy)
	assert.Equal(t, protocol.DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, DefaultMaxRequestBytes, cfg.MaxRequestBytes)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Zero(t, cfg.AcceptRate)
	assert.Zero(t, cfg.AcceptBurst)
	assert.NoError(t, cfg.Validate())
}

func TestConfigAcceptBurstDefaultsToCapacity(t *testing.T) {
	cfg := Config{Capacity: 4, AcceptRate: 100}
	cfg.ApplyDefaults()
	assert.Equal(t, 4, cfg.AcceptBurst)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"port too large", func(c *Config) { c.Port = 70000 }, "invalid port"},
		{"unknown strategy", func(c *Config) { c.Strategy = "fork" }, "invalid strategy"},
		{"negative idle timeout", func(c *Config) { c.IdleTimeout = -time.Second }, "invalid idle timeout"},
		{"negative max request", func(c *Config) { c.MaxRequestBytes = -1 }, "invalid max request size"},
		{"negative accept rate", func(c *Config) { c.AcceptRate = -1 }, "invalid accept rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestParseCapacity(t *testing.T) {
	tests := map[string]int{
		"5":    5,
		" 20 ": 20,
		"1":    1,
		"0":    DefaultCapacity,
		"-3":   DefaultCapacity,
		"abc":  DefaultCapacity,
		"":     DefaultCapacity,
		"2.5":  DefaultCapacity,
	}
	for arg, want := range tests {
		assert.Equal(t, want, ParseCapacity(arg), "arg %q", arg)
	}
}
