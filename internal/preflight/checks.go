// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/randomizedcoder/go-tash-host/internal/logging"
)

// MinFileDescriptors covers the monitor connections, the metrics server and
// the log file with headroom.
const MinFileDescriptors = 64

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll checks.
type Options struct {
	MonitorURL    string
	MonitorLaunch string // "" skips the launch command check
	LogDir        string // "" means the temp dir
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// add appends a check and folds its outcome into the result.
func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	result.add(checkMonitorURL(opts.MonitorURL))
	result.add(checkLaunchCommand(opts.MonitorLaunch))
	result.add(checkLogDir(opts.LogDir))
	result.add(checkFileDescriptors(MinFileDescriptors))

	return result
}

// checkMonitorURL verifies the monitor base URL is usable.
func checkMonitorURL(raw string) Check {
	u, err := url.Parse(raw)
	if err != nil {
		return Check{Name: "monitor_url", Message: fmt.Sprintf("%q: %v", raw, err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Check{Name: "monitor_url", Message: fmt.Sprintf("%q: scheme must be http or https", raw)}
	}
	if u.Host == "" {
		return Check{Name: "monitor_url", Message: fmt.Sprintf("%q: missing host", raw)}
	}
	return Check{Name: "monitor_url", Passed: true, Message: u.Redacted()}
}

// checkLaunchCommand verifies the monitor launch command can be found.
func checkLaunchCommand(command string) Check {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Check{
			Name:    "monitor_launch",
			Passed:  true,
			Message: "not configured (monitor must already be running)",
		}
	}

	path, err := exec.LookPath(fields[0])
	if err != nil {
		return Check{
			Name:    "monitor_launch",
			Message: fmt.Sprintf("%s not found: %v", fields[0], err),
		}
	}
	return Check{Name: "monitor_launch", Passed: true, Message: "found at " + path}
}

// checkLogDir verifies the log directory can be created and written.
func checkLogDir(dir string) Check {
	if dir == "" {
		dir = os.TempDir()
	}
	target := filepath.Join(dir, logging.LogSubdir)

	if err := os.MkdirAll(target, 0o755); err != nil {
		return Check{Name: "log_dir", Message: fmt.Sprintf("cannot create %s: %v", target, err)}
	}
	probe, err := os.CreateTemp(target, ".preflight-*")
	if err != nil {
		return Check{Name: "log_dir", Message: fmt.Sprintf("%s not writable: %v", target, err)}
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return Check{Name: "log_dir", Passed: true, Message: target}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(required int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: "unable to check: " + err.Error(),
		}
	}
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	WriteResults(os.Stdout, result)
}

// WriteResults writes the preflight check results to w.
func WriteResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "monitor_url":
		return "pass -monitor http://host:port"
	case "monitor_launch":
		return "install the monitor or fix -monitor-launch"
	case "log_dir":
		return "pass -log-dir with a writable directory"
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}
