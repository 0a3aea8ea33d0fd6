package stats

// This file implements the exit summary formatter which is printed when the
// host exits.

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Title and ProcessID identify the registration.
	Title     string
	ProcessID int

	// MonitorURL is the monitor base URL.
	MonitorURL string

	// Interval is the configured confirmation interval.
	Interval time.Duration

	// FinalState is the reporter state at exit.
	FinalState string

	// FatalError is the error that ended the run, "" on a clean exit.
	FatalError string

	// MetricsAddr is the Prometheus metrics endpoint address.
	MetricsAddr string

	// MetricsDump is the file the final metrics were written to.
	MetricsDump string
}

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// FormatExitSummary formats round statistics for display at program exit.
func FormatExitSummary(snap *RoundSnapshot, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                            tash-host Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	if cfg.FatalError != "" {
		fmt.Fprintf(&b, "⚠️  EXITED ON ERROR: %s\n\n", cfg.FatalError)
	}

	fmt.Fprintf(&b, "Process:                %s (pid %d)\n", cfg.Title, cfg.ProcessID)
	fmt.Fprintf(&b, "Monitor:                %s\n", cfg.MonitorURL)
	fmt.Fprintf(&b, "Final State:            %s\n", cfg.FinalState)
	if snap == nil {
		b.WriteString("\n(no confirmation rounds were run)\n\n")
		writeFooter(&b, cfg)
		return b.String()
	}

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(snap.Elapsed))
	fmt.Fprintf(&b, "Interval:               %s\n", cfg.Interval)
	lastConfirmed := "never"
	if !snap.LastConfirmed.IsZero() {
		lastConfirmed = snap.LastConfirmed.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(&b, "Last Confirmed:         %s\n\n", lastConfirmed)

	b.WriteString(lightRule)
	b.WriteString("                             Confirmation Rounds\n")
	b.WriteString(lightRule + "\n")

	fmt.Fprintf(&b, "  %-20s %12s\n", "Outcome", "Count")
	b.WriteString("  " + strings.Repeat("─", 33) + "\n")
	fmt.Fprintf(&b, "  %-20s %12s\n", "Rounds", FormatNumber(snap.Rounds))
	for _, outcome := range []string{"confirmed", "lost", "failed"} {
		fmt.Fprintf(&b, "  %-20s %12s\n", "  "+outcome, FormatNumber(snap.Outcomes[outcome]))
	}
	fmt.Fprintf(&b, "  %-20s %12s\n", "Skipped ticks", FormatNumber(snap.TotalSkips()))
	for _, reason := range []string{"unchanged", "in_flight"} {
		if n := snap.Skips[reason]; n > 0 {
			fmt.Fprintf(&b, "  %-20s %12s\n", "  "+reason, FormatNumber(n))
		}
	}
	b.WriteString("\n")

	if snap.Rounds > 0 {
		b.WriteString(lightRule)
		b.WriteString("                               Round Trip Latency\n")
		b.WriteString(lightRule + "\n")
		fmt.Fprintf(&b, "  P50: %-10s P95: %-10s P99: %-10s Max: %s\n\n",
			FormatMs(snap.LatencyP50),
			FormatMs(snap.LatencyP95),
			FormatMs(snap.LatencyP99),
			FormatMs(snap.LatencyMax),
		)

		b.WriteString("  Monitor responses:\n")
		for _, code := range snap.sortedCodes() {
			fmt.Fprintf(&b, "    %-24s %s\n", statusLabel(code), FormatNumber(snap.StatusCodes[code]))
		}
		b.WriteString("\n")
	}

	writeFooter(&b, cfg)
	return b.String()
}

func writeFooter(b *strings.Builder, cfg SummaryConfig) {
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.MetricsDump != "" {
		fmt.Fprintf(b, "Final metrics written to: %s\n", cfg.MetricsDump)
	}
	b.WriteString(heavyRule)
}

// statusLabel returns a human-readable label for a response code.
func statusLabel(code int) string {
	if code == 0 {
		return "no response"
	}
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("%d %s", code, text)
	}
	return fmt.Sprintf("%d", code)
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
