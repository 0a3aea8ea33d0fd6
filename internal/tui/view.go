package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-tash-host/internal/liveness"
)

// Rows used by everything except the status log.
const chromeRows = 12

// =============================================================================
// Main View Rendering
// =============================================================================

// renderStatusView renders the main status window.
func (m Model) renderStatusView() string {
	sections := []string{
		m.renderHeader(),
		m.renderRegistration(),
		m.renderStatusLog(),
		m.renderFooter(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" tash-host │ %s │ %s (pid %d) │ Elapsed: %s ",
		GetStateLabel(m.state, m.degraded),
		m.title,
		m.processID,
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

func (m Model) renderRegistration() string {
	confirmed := liveness.FormatConfirmedTime(m.lastConfirmed)
	if confirmed == "" {
		confirmed = "never"
	}

	rows := []string{
		RenderKeyValue("Monitor", m.monitorURL),
		RenderKeyValue("Interval", m.interval.String()),
		RenderKeyValue("Last confirmed", confirmed),
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderStatusLog shows as many of the most recent lines as fit.
func (m Model) renderStatusLog() string {
	header := sectionHeaderStyle.Render("Status")

	rows := m.height - chromeRows
	if rows < 3 {
		rows = 3
	}
	lines := m.status.Recent(rows)
	if len(lines) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, dimStyle.Render("(no status yet)"))
	}

	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(mutedStyle.Render(line.At.Local().Format("15:04:05")))
		b.WriteString("  ")
		b.WriteString(line.Text)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, b.String())
}

func (m Model) renderFooter() string {
	parts := []string{"q: quit (deregisters)"}
	if m.metricsAddr != "" {
		parts = append(parts, fmt.Sprintf("metrics: http://%s/metrics", m.metricsAddr))
	}
	return footerStyle.Render(strings.Join(parts, "  │  "))
}

// renderFatal renders the fatal error dialog.
func (m Model) renderFatal() string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		dialogTitleStyle.Render(m.fatal.Title),
		boldStyle.Render(m.fatal.Message),
		footerStyle.Render("Press any key to exit"),
	)
	dialog := dialogStyle.Render(body)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, dialog)
}
