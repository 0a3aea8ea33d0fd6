package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Environment variables that override flag defaults. An explicit flag wins.
const (
	EnvMonitorURL = "TASH_HOST_MONITOR_URL"
	EnvLogDir     = "TASH_HOST_LOG_DIR"
)

// ParseFlags parses command-line flags and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(flag.CommandLine, os.Args[1:], os.Getenv)
}

// ParseArgs parses args into a Config using fs. getenv supplies
// environment overrides and may be nil.
func ParseArgs(fs *flag.FlagSet, args []string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	applyEnv(cfg, getenv)

	fs.Usage = func() { printUsage(fs) }

	// Monitor
	fs.StringVar(&cfg.MonitorURL, "monitor", cfg.MonitorURL, "Tash monitor base URL")
	fs.StringVar(&cfg.MonitorLaunch, "monitor-launch", cfg.MonitorLaunch, "Command that starts the monitor when it is not running")
	fs.DurationVar(&cfg.MonitorLaunchTimeout, "monitor-launch-timeout", cfg.MonitorLaunchTimeout, "How long to wait for a launched monitor")
	fs.BoolVar(&cfg.MonitorH2C, "monitor-h2c", cfg.MonitorH2C, "Talk HTTP/2 without TLS to the monitor")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "HTTP User-Agent header")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Timeout for each monitor request")

	// Liveness
	fs.StringVar(&cfg.Title, "title", cfg.Title, "Process title sent with the registration")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Liveness confirmation interval")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Bound for deregistration at exit")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, `Prometheus metrics address ("" to disable)`)
	fs.StringVar(&cfg.MetricsDump, "metrics-dump", cfg.MetricsDump, "Write final metrics in text format to this file at exit")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for the log file used in TUI mode (default: temp dir)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")

	// Presentation
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Show the status window (use -tui=false for console output)")

	// Diagnostics
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Run preflight, probe the monitor and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Launch retry policy
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "Initial delay between monitor probes after launch")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum delay between monitor probes")
	fs.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Probe delay multiplier")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	return cfg, nil
}

// applyEnv applies environment overrides to the defaults.
func applyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := getenv(EnvMonitorURL); v != "" {
		cfg.MonitorURL = v
	}
	if v := getenv(EnvLogDir); v != "" {
		cfg.LogDir = v
	}
}

func printUsage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, `tash-host - keeps a process registered and alive with the Tash monitor

Usage:
  tash-host [flags]

Monitor:
`)
	printFlagCategory(w, fs, []string{"monitor", "monitor-launch", "monitor-launch-timeout", "monitor-h2c", "user-agent", "request-timeout"})

	fmt.Fprintf(w, "\nLiveness:\n")
	printFlagCategory(w, fs, []string{"title", "interval", "shutdown-timeout"})

	fmt.Fprintf(w, "\nLaunch Retry:\n")
	printFlagCategory(w, fs, []string{"backoff-initial", "backoff-max", "backoff-multiply"})

	fmt.Fprintf(w, "\nObservability:\n")
	printFlagCategory(w, fs, []string{"metrics", "metrics-dump", "log-dir", "log-format", "v"})

	fmt.Fprintf(w, "\nDashboard & Diagnostics:\n")
	printFlagCategory(w, fs, []string{"tui", "check", "skip-preflight"})

	fmt.Fprintf(w, `
Environment:
  %s  overrides the -monitor default
  %s      overrides the -log-dir default

Examples:
  # Register with a local monitor, console output
  tash-host -tui=false

  # Start the monitor if needed
  tash-host -monitor-launch "/opt/tash/tash-monitor --port 60404"

`, EnvMonitorURL, EnvLogDir)
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(w io.Writer, fs *flag.FlagSet, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
