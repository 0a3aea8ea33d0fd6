package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// MinInterval is the shortest accepted confirmation interval.
const MinInterval = 100 * time.Millisecond

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.MonitorURL == "" {
		errs = append(errs, ValidationError{
			Field:   "monitor_url",
			Message: "monitor URL is required",
		})
	} else if err := validateURL(cfg.MonitorURL); err != nil {
		errs = append(errs, ValidationError{
			Field:   "monitor_url",
			Message: err.Error(),
		})
	}

	if cfg.Interval < MinInterval {
		errs = append(errs, ValidationError{
			Field:   "interval",
			Message: fmt.Sprintf("must be at least %v (got %v)", MinInterval, cfg.Interval),
		})
	}

	if cfg.RequestTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "request_timeout",
			Message: "must be positive",
		})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "shutdown_timeout",
			Message: "must be positive",
		})
	}
	if cfg.MonitorLaunch != "" && cfg.MonitorLaunchTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "monitor_launch_timeout",
			Message: "must be positive when -monitor-launch is set",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Backoff settings
	if cfg.BackoffInitial <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_initial",
			Message: "must be positive",
		})
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		errs = append(errs, ValidationError{
			Field:   "backoff_max",
			Message: "must be >= backoff_initial",
		})
	}
	if cfg.BackoffMultiply < 1.0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_multiply",
			Message: "must be >= 1.0",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}

// ApplyCheckMode modifies config for -check mode.
func ApplyCheckMode(cfg *Config) {
	cfg.TUIEnabled = false
	cfg.MetricsAddr = ""
	cfg.Verbose = true
}
