// Package main provides the tash-host CLI entry point.
//
// tash-host registers itself with the Tash process monitor and keeps
// confirming that it is alive until it is stopped, then deregisters.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/randomizedcoder/go-tash-host/internal/config"
	"github.com/randomizedcoder/go-tash-host/internal/logging"
	"github.com/randomizedcoder/go-tash-host/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/tash-host
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("tash-host %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Apply -check mode modifications
	if cfg.Check {
		config.ApplyCheckMode(cfg)
	}

	// Initialize logger
	// When TUI is enabled, logs go to a file to keep the terminal clean
	var logger *slog.Logger
	if cfg.TUIEnabled {
		f, err := logging.OpenLogFile(cfg.LogDir, time.Now(), os.Getpid())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			return 1
		}
		defer f.Close()
		level := "info"
		if cfg.Verbose {
			level = "debug"
		}
		logger = logging.NewLoggerWithWriter(f, cfg.LogFormat, level)
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	if cfg.Check {
		logger.Info("check_mode_enabled", "monitor_url", cfg.MonitorURL)
	}

	orch := orchestrator.New(cfg, logger, orchestrator.WithVersion(version))
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("host_failed", "error", err)
		if !cfg.TUIEnabled {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}

	return 0
}
