package config

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"
	"time"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("tash-host", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFlagType(t *testing.T) {
	testCases := []struct {
		name     string
		defValue string
		expected string
	}{
		{"bool true", "true", ""},
		{"bool false", "false", ""},
		{"int", "42", "int"},
		{"string", "http://localhost:60404", "string"},
		{"duration seconds", "7s", "duration"},
		{"duration minutes", "5m", "duration"},
		{"duration hours", "1h", "duration"},
		{"float", "1.7", "int"}, // Sscanf parses "1" then stops at decimal
		{"empty", "", "string"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &flag.Flag{Name: "test", DefValue: tc.defValue}
			if got := flagType(f); got != tc.expected {
				t.Errorf("flagType(%q) = %q, want %q", tc.defValue, got, tc.expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MonitorURL != "http://localhost:60404" {
		t.Errorf("MonitorURL = %q, want %q", cfg.MonitorURL, "http://localhost:60404")
	}
	if cfg.Interval != 7*time.Second {
		t.Errorf("Interval = %v, want 7s", cfg.Interval)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 3s", cfg.ShutdownTimeout)
	}
	if !cfg.TUIEnabled {
		t.Error("TUIEnabled should be true by default")
	}
	if cfg.MonitorLaunch != "" {
		t.Errorf("MonitorLaunch = %q, want empty", cfg.MonitorLaunch)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestParseArgs(t *testing.T) {
	cfg, err := ParseArgs(newFlagSet(), []string{
		"-monitor", "http://tash:8080",
		"-monitor-launch", "tash-monitor --port 8080",
		"-interval", "2s",
		"-title", "Worker",
		"-metrics", "",
		"-tui=false",
		"-monitor-h2c",
		"-backoff-multiply", "2.5",
	}, nil)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}

	if cfg.MonitorURL != "http://tash:8080" {
		t.Errorf("MonitorURL = %q", cfg.MonitorURL)
	}
	if cfg.MonitorLaunch != "tash-monitor --port 8080" {
		t.Errorf("MonitorLaunch = %q", cfg.MonitorLaunch)
	}
	if cfg.Interval != 2*time.Second {
		t.Errorf("Interval = %v", cfg.Interval)
	}
	if cfg.Title != "Worker" {
		t.Errorf("Title = %q", cfg.Title)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want disabled", cfg.MetricsAddr)
	}
	if cfg.TUIEnabled {
		t.Error("TUIEnabled should be false")
	}
	if !cfg.MonitorH2C {
		t.Error("MonitorH2C should be true")
	}
	if cfg.BackoffMultiply != 2.5 {
		t.Errorf("BackoffMultiply = %v", cfg.BackoffMultiply)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-clients", "5"}},
		{"bad duration", []string{"-interval", "soon"}},
		{"positional", []string{"http://tash:8080"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseArgs(newFlagSet(), tc.args, nil); err == nil {
				t.Errorf("ParseArgs(%v) should fail", tc.args)
			}
		})
	}
}

func TestParseArgs_Environment(t *testing.T) {
	env := envMap(map[string]string{
		EnvMonitorURL: "http://from-env:1",
		EnvLogDir:     "/var/log/tash",
	})

	t.Run("overrides_defaults", func(t *testing.T) {
		cfg, err := ParseArgs(newFlagSet(), nil, env)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.MonitorURL != "http://from-env:1" {
			t.Errorf("MonitorURL = %q", cfg.MonitorURL)
		}
		if cfg.LogDir != "/var/log/tash" {
			t.Errorf("LogDir = %q", cfg.LogDir)
		}
	})

	t.Run("flag_wins", func(t *testing.T) {
		cfg, err := ParseArgs(newFlagSet(), []string{"-monitor", "http://from-flag:2"}, env)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.MonitorURL != "http://from-flag:2" {
			t.Errorf("MonitorURL = %q", cfg.MonitorURL)
		}
	})
}

func TestUsage(t *testing.T) {
	var buf bytes.Buffer
	fs := newFlagSet()
	if _, err := ParseArgs(fs, nil, nil); err != nil {
		t.Fatal(err)
	}
	fs.SetOutput(&buf)
	fs.Usage()

	out := buf.String()
	for _, want := range []string{"-monitor ", "-interval duration", "(default 7s)", EnvMonitorURL} {
		if !strings.Contains(out, want) {
			t.Errorf("usage missing %q:\n%s", want, out)
		}
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"missing monitor", func(c *Config) { c.MonitorURL = "" }, "monitor_url"},
		{"bad scheme", func(c *Config) { c.MonitorURL = "ftp://tash" }, "monitor_url"},
		{"no host", func(c *Config) { c.MonitorURL = "http://" }, "monitor_url"},
		{"interval too short", func(c *Config) { c.Interval = time.Millisecond }, "interval"},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, "request_timeout"},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown_timeout"},
		{"launch without timeout", func(c *Config) {
			c.MonitorLaunch = "tash-monitor"
			c.MonitorLaunchTimeout = 0
		}, "monitor_launch_timeout"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"zero backoff", func(c *Config) { c.BackoffInitial = 0 }, "backoff_initial"},
		{"max below initial", func(c *Config) {
			c.BackoffInitial = 5 * time.Second
			c.BackoffMax = time.Second
		}, "backoff_max"},
		{"multiply below one", func(c *Config) { c.BackoffMultiply = 0.5 }, "backoff_multiply"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Errorf("error = %v, want field %q", err, tc.field)
			}
		})
	}
}

func TestValidate_LaunchTimeoutIgnoredWithoutLaunch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonitorLaunchTimeout = 0

	if err := Validate(cfg); err != nil {
		t.Errorf("launch timeout should not matter without -monitor-launch: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonitorURL = ""
	cfg.Interval = 0
	cfg.LogFormat = "yaml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected multiple errors")
	}

	errStr := err.Error()
	for _, field := range []string{"monitor_url", "interval", "log_format"} {
		if !strings.Contains(errStr, field) {
			t.Errorf("Error should mention %s", field)
		}
	}
}

func TestApplyCheckMode(t *testing.T) {
	cfg := DefaultConfig()

	ApplyCheckMode(cfg)

	if cfg.TUIEnabled {
		t.Error("Check mode should disable the TUI")
	}
	if cfg.MetricsAddr != "" {
		t.Error("Check mode should disable the metrics server")
	}
	if !cfg.Verbose {
		t.Error("Check mode should enable verbose")
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "test_field", Message: "test message"}

	if got := err.Error(); got != "test_field: test message" {
		t.Errorf("Error string = %q, want %q", got, "test_field: test message")
	}
}
