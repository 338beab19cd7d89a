package config

import (
	"errors"
	"fmt"
)

// ValidationError reports one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const maxPort = 65535

// Validate checks the invariants the engine relies on at runtime.
func (c *Config) Validate() error {
	var errs []error

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		errs = append(errs, &ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error, fatal"})
	}

	if c.Server.Port < 1 || c.Server.Port > maxPort {
		errs = append(errs, &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"})
	}

	if c.Database.Host == "" {
		errs = append(errs, &ValidationError{Field: "database.host", Message: "is required"})
	}

	if c.Health.PruneAfterSweeps < 1 {
		errs = append(errs, &ValidationError{Field: "health.prune_after_sweeps", Message: "must be at least 1"})
	}

	if c.Health.Concurrency < 1 {
		errs = append(errs, &ValidationError{Field: "health.concurrency", Message: "must be at least 1"})
	}

	if c.Refresh.MinActiveLinks < 1 {
		errs = append(errs, &ValidationError{Field: "refresh.min_active_links", Message: "must be at least 1"})
	}

	return errors.Join(errs...)
}
