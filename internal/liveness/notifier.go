package liveness

import "time"

// Notifier is the presentation boundary. The reporter only calls it from the
// main loop.
type Notifier interface {
	// ShowFatalError presents a terminal error. The host exits afterwards.
	ShowFatalError(title, message string)

	// ShowStatus appends a line to the status log.
	ShowStatus(text string)

	// ShowLastConfirmedTime shows when liveness was last confirmed.
	// The zero time means never.
	ShowLastConfirmedTime(t time.Time)
}

// FormatConfirmedTime renders a confirmed time as a long time string, or
// the empty string for the zero time.
func FormatConfirmedTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("15:04:05")
}
