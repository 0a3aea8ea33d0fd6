package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-tash-host/internal/liveness"
	"github.com/randomizedcoder/go-tash-host/internal/logging"
)

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Notifier presents reporter events in the status window.
type Notifier struct {
	program Sender
	status  *logging.StatusBuffer
}

var _ liveness.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier that forwards to program and records
// status lines in status.
func NewNotifier(program Sender, status *logging.StatusBuffer) *Notifier {
	return &Notifier{program: program, status: status}
}

// ShowFatalError opens the fatal error dialog.
func (n *Notifier) ShowFatalError(title, message string) {
	n.status.Add(title + ": " + message)
	n.program.Send(FatalMsg{Title: title, Message: message})
}

// ShowStatus appends a line to the status log.
func (n *Notifier) ShowStatus(text string) {
	line := n.status.Add(text)
	n.program.Send(StatusMsg(line))
}

// ShowLastConfirmedTime updates the last confirmed time.
func (n *Notifier) ShowLastConfirmedTime(t time.Time) {
	n.program.Send(ConfirmedMsg(t))
}

// ShowState updates the state indicator.
func (n *Notifier) ShowState(state liveness.State) {
	n.program.Send(StateMsg{State: state.String(), Degraded: state.IsDegraded()})
}
