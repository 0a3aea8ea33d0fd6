// Package config provides configuration management for tash-host.
package config

import "time"

// Config holds all configuration options for the host.
type Config struct {
	// Monitor
	MonitorURL           string        `json:"monitor_url"`
	MonitorLaunch        string        `json:"monitor_launch"` // command that starts the monitor, "" = never launch
	MonitorLaunchTimeout time.Duration `json:"monitor_launch_timeout"`
	MonitorH2C           bool          `json:"monitor_h2c"`
	UserAgent            string        `json:"user_agent"`
	RequestTimeout       time.Duration `json:"request_timeout"`

	// Liveness
	Title           string        `json:"title"`
	Interval        time.Duration `json:"interval"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // "" = disabled
	MetricsDump string `json:"metrics_dump"` // path written at exit, "" = disabled
	LogDir      string `json:"log_dir"`
	LogFormat   string `json:"log_format"` // json, text
	Verbose     bool   `json:"verbose"`

	// Presentation
	TUIEnabled bool `json:"tui_enabled"`

	// Diagnostic modes
	Check         bool `json:"check"`
	SkipPreflight bool `json:"skip_preflight"`

	// Monitor launch retry policy
	BackoffInitial  time.Duration `json:"backoff_initial"`
	BackoffMax      time.Duration `json:"backoff_max"`
	BackoffMultiply float64       `json:"backoff_multiply"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Monitor
		MonitorURL:           "http://localhost:60404",
		MonitorLaunchTimeout: 30 * time.Second,
		UserAgent:            "tash-host/1.0",
		RequestTimeout:       5 * time.Second,

		// Liveness
		Title:           "TashHost",
		Interval:        7 * time.Second,
		ShutdownTimeout: 3 * time.Second,

		// Observability
		MetricsAddr: "127.0.0.1:17092",
		LogFormat:   "json",

		// Presentation
		TUIEnabled: true,

		// Launch retry policy
		BackoffInitial:  250 * time.Millisecond,
		BackoffMax:      5 * time.Second,
		BackoffMultiply: 1.7,
	}
}
