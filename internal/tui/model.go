package tui

import (
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-tash-host/internal/logging"
)

// MaxStatusLines is the number of status lines the window can show.
const MaxStatusLines = logging.MaxBufferedLines

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatusMsg announces a line added to the status buffer.
type StatusMsg logging.StatusLine

// ConfirmedMsg updates the last confirmed time. The zero time means never.
type ConfirmedMsg time.Time

// StateMsg updates the registration state indicator.
type StateMsg struct {
	State    string
	Degraded bool
}

// FatalMsg shows a fatal error dialog. Any key then closes the window.
type FatalMsg struct {
	Title   string
	Message string
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	title       string
	processID   int
	monitorURL  string
	metricsAddr string
	interval    time.Duration

	// Current state
	state         string
	degraded      bool
	lastConfirmed time.Time
	status        *logging.StatusBuffer
	fatal         *FatalMsg
	startTime     time.Time
	now           time.Time

	// Display options
	width  int
	height int

	// Quit flag
	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	Title       string
	ProcessID   int
	MonitorURL  string
	MetricsAddr string
	Interval    time.Duration

	// Status is the source of the status log. Nil gives an empty log.
	Status *logging.StatusBuffer
}

// New creates a new TUI model.
func New(cfg Config) Model {
	now := time.Now()
	status := cfg.Status
	if status == nil {
		status = logging.NewStatusBuffer(slog.New(slog.DiscardHandler))
	}
	return Model{
		title:       cfg.Title,
		processID:   cfg.ProcessID,
		monitorURL:  cfg.MonitorURL,
		metricsAddr: cfg.MetricsAddr,
		interval:    cfg.Interval,
		status:      status,
		startTime:   now,
		now:         now,
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Any key dismisses the fatal dialog and closes the window.
		if m.fatal != nil {
			m.quitting = true
			return m, tea.Quit
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case StatusMsg:
		// The line is already in the buffer; returning repaints.
		return m, nil

	case ConfirmedMsg:
		m.lastConfirmed = time.Time(msg)
		return m, nil

	case StateMsg:
		m.state = msg.State
		m.degraded = msg.Degraded
		return m, nil

	case FatalMsg:
		m.fatal = &msg
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.fatal != nil {
		return m.renderFatal()
	}
	return m.renderStatusView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after one second.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the window opened.
func (m Model) Elapsed() time.Duration {
	return m.now.Sub(m.startTime)
}

// State returns the displayed state.
func (m Model) State() string {
	return m.state
}

// LastConfirmed returns the displayed last confirmed time.
func (m Model) LastConfirmed() time.Time {
	return m.lastConfirmed
}

// Lines returns the status log, oldest first.
func (m Model) Lines() []logging.StatusLine {
	return m.status.Recent(MaxStatusLines)
}

// Fatal returns the fatal error being shown, if any.
func (m Model) Fatal() *FatalMsg {
	return m.fatal
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
