// Package activity records when the main thread last proved it was responsive.
package activity

import (
	"context"
	"errors"
	"time"
)

// ErrThreadConfinement matches any ThreadConfinementError.
var ErrThreadConfinement = errors.New("activity stamp requested off the main thread")

// ThreadConfinementError is returned when StampNow is called from a context
// that is not executing on the main loop. It means the main thread is not the
// one proving liveness, so any report built on the stamp would be false.
type ThreadConfinementError struct {
	Operation string
}

func (e *ThreadConfinementError) Error() string {
	return "thread confinement violated: " + e.Operation + " must run on the main thread"
}

// Is reports whether target is ErrThreadConfinement.
func (e *ThreadConfinementError) Is(target error) bool {
	return target == ErrThreadConfinement
}

// MainThread tells whether a context belongs to the main thread.
// dispatch.Loop implements it.
type MainThread interface {
	OnLoop(ctx context.Context) bool
}

// Tracker holds the last activity stamp. It has no lock: the stamp is written
// only on the main thread, and readers on other goroutines must go through
// the main loop as well.
type Tracker struct {
	main MainThread
	now  func() time.Time
	last time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker confined to main.
func NewTracker(main MainThread, opts ...Option) *Tracker {
	t := &Tracker{
		main: main,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StampNow records the current time as the main thread's last proof of life.
// The stamp is left untouched when ctx is not on the main thread.
func (t *Tracker) StampNow(ctx context.Context) error {
	if !t.main.OnLoop(ctx) {
		return &ThreadConfinementError{Operation: "StampNow"}
	}
	t.last = t.now()
	return nil
}

// LastStamp returns the last recorded stamp, or the zero time if none.
func (t *Tracker) LastStamp() time.Time {
	return t.last
}
