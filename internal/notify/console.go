// Package notify prints reporter notifications to a terminal when the TUI
// is disabled.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/randomizedcoder/go-tash-host/internal/liveness"
	"github.com/randomizedcoder/go-tash-host/internal/logging"
)

// Console writes one line per notification to w.
type Console struct {
	w      io.Writer
	status *logging.StatusBuffer
	mu     sync.Mutex
}

var _ liveness.Notifier = (*Console)(nil)

// NewConsole creates a console notifier. Status lines are also recorded in
// status, which logs them.
func NewConsole(w io.Writer, status *logging.StatusBuffer) *Console {
	return &Console{w: w, status: status}
}

// ShowFatalError prints the error. The host exits afterwards.
func (c *Console) ShowFatalError(title, message string) {
	line := c.status.Add(title + ": " + message)
	c.printf("%s  ERROR  %s\n", stamp(line.At), line.Text)
}

// ShowStatus prints a status line.
func (c *Console) ShowStatus(text string) {
	line := c.status.Add(text)
	c.printf("%s  %s\n", stamp(line.At), line.Text)
}

// ShowLastConfirmedTime prints the confirmed time. Nothing is printed for
// the zero time.
func (c *Console) ShowLastConfirmedTime(t time.Time) {
	formatted := liveness.FormatConfirmedTime(t)
	if formatted == "" {
		return
	}
	c.printf("%s  Last confirmed: %s\n", stamp(time.Now()), formatted)
}

// ShowState prints a state change.
func (c *Console) ShowState(state liveness.State) {
	marker := ""
	if state.IsDegraded() {
		marker = " (!)"
	}
	c.printf("%s  State: %s%s\n", stamp(time.Now()), state, marker)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func stamp(t time.Time) string {
	return t.Local().Format("15:04:05")
}
