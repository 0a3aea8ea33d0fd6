package stats

import (
	"strings"
	"testing"
	"time"
)

func TestFormatExitSummary(t *testing.T) {
	s := NewRoundStats()
	s.RecordRound("confirmed", 204, 12*time.Millisecond)
	s.RecordRound("failed", 403, 3*time.Millisecond)
	s.RecordSkip("unchanged")
	s.RecordConfirmed(time.Date(2026, 10, 15, 12, 0, 0, 0, time.Local))

	out := FormatExitSummary(s.Snapshot(), SummaryConfig{
		Title:       "TashHost",
		ProcessID:   4711,
		MonitorURL:  "http://localhost:60404",
		Interval:    7 * time.Second,
		FinalState:  "stopped",
		MetricsAddr: "127.0.0.1:17092",
		MetricsDump: "/tmp/metrics.prom",
	})

	for _, want := range []string{
		"tash-host Exit Summary",
		"TashHost (pid 4711)",
		"Final State:            stopped",
		"Last Confirmed:         2026-10-15 12:00:00",
		"Round Trip Latency",
		"204 No Content",
		"403 Forbidden",
		"unchanged",
		"http://127.0.0.1:17092/metrics",
		"/tmp/metrics.prom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "EXITED ON ERROR") {
		t.Error("clean exit should not show an error banner")
	}
}

func TestFormatExitSummary_NoRounds(t *testing.T) {
	out := FormatExitSummary(NewRoundStats().Snapshot(), SummaryConfig{FinalState: "unregistered"})

	if !strings.Contains(out, "Last Confirmed:         never") {
		t.Errorf("expected never-confirmed line:\n%s", out)
	}
	if strings.Contains(out, "Round Trip Latency") {
		t.Error("latency section shown without rounds")
	}
}

func TestFormatExitSummary_NilSnapshotAndError(t *testing.T) {
	out := FormatExitSummary(nil, SummaryConfig{
		FinalState: "unregistered",
		FatalError: "could not connect to monitor",
	})

	if !strings.Contains(out, "EXITED ON ERROR: could not connect to monitor") {
		t.Errorf("missing error banner:\n%s", out)
	}
	if !strings.Contains(out, "no confirmation rounds were run") {
		t.Errorf("missing nil-snapshot note:\n%s", out)
	}
}

func TestStatusLabel(t *testing.T) {
	testCases := []struct {
		code int
		want string
	}{
		{0, "no response"},
		{204, "204 No Content"},
		{599, "599"},
	}
	for _, tc := range testCases {
		if got := statusLabel(tc.code); got != tc.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	testCases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{3*time.Hour + 5*time.Minute + 7*time.Second, "03:05:07"},
	}
	for _, tc := range testCases {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	testCases := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.5K"},
		{2_500_000, "2.5M"},
	}
	for _, tc := range testCases {
		if got := FormatNumber(tc.n); got != tc.want {
			t.Errorf("FormatNumber(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestFormatMs(t *testing.T) {
	testCases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 ms"},
		{500 * time.Microsecond, "500 µs"},
		{42 * time.Millisecond, "42 ms"},
	}
	for _, tc := range testCases {
		if got := FormatMs(tc.d); got != tc.want {
			t.Errorf("FormatMs(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
