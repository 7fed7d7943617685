package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/filetransfer/pkg/server"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Struct tags cover per-field constraints (go-playground/validator); rules
// spanning several sections are checked afterwards.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := cfg.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Worker processes rebuild the backend and must see the same files.
	if cfg.Server.Strategy == server.StrategyProcess {
		switch cfg.Storage.Type {
		case "memory":
			return fmt.Errorf("storage: type %q cannot be shared by worker processes, use filesystem or s3 with strategy %q",
				cfg.Storage.Type, server.StrategyProcess)
		case "badger":
			return fmt.Errorf("storage: badger locks its directory and cannot be opened by several worker processes, use strategy %q",
				server.StrategyThread)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		return fmt.Errorf("metrics: port %d conflicts with server port", cfg.Metrics.Port)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
