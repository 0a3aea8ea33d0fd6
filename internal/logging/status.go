package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// MaxLineLength is the maximum length of a status line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of status lines kept.
	MaxBufferedLines = 100
)

// StatusLine is one entry of the status log.
type StatusLine struct {
	At   time.Time
	Text string
}

// StatusBuffer keeps the most recent status lines for display and logs
// each one as it arrives.
type StatusBuffer struct {
	logger *slog.Logger
	now    func() time.Time

	// Circular buffer for recent lines
	buffer []StatusLine
	bufIdx int
	total  int
	mu     sync.Mutex
}

// NewStatusBuffer creates an empty status buffer.
func NewStatusBuffer(logger *slog.Logger) *StatusBuffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusBuffer{
		logger: logger,
		now:    time.Now,
		buffer: make([]StatusLine, MaxBufferedLines),
	}
}

// Add appends a status line and returns the stored entry.
func (b *StatusBuffer) Add(text string) StatusLine {
	if len(text) > MaxLineLength {
		text = truncate(text, MaxLineLength) + "...(truncated)"
	}
	line := StatusLine{At: b.now(), Text: text}

	b.mu.Lock()
	b.buffer[b.bufIdx] = line
	b.bufIdx = (b.bufIdx + 1) % MaxBufferedLines
	b.total++
	b.mu.Unlock()

	b.logger.Log(context.Background(), classifyLine(text), "status_line", "text", text)
	return line
}

// truncate cuts text to at most limit bytes without splitting a rune.
func truncate(text string, limit int) string {
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// classifyLine picks a log level from the line's wording.
func classifyLine(text string) slog.Level {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "could not") ||
		strings.Contains(lower, "no longer") {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Recent returns up to n of the most recent lines, oldest first.
func (b *StatusBuffer) Recent(n int) []StatusLine {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if n > b.total {
		n = b.total
	}

	lines := make([]StatusLine, 0, n)
	for i := 0; i < n; i++ {
		idx := (b.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, b.buffer[idx])
	}
	return lines
}

// Total returns how many lines were ever added.
func (b *StatusBuffer) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
