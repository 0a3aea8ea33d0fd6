// Package dispatch provides the single-goroutine task loop that plays the
// role of the host's main thread.
//
// All state that is confined to the main thread (activity stamps, the
// confirmation record, anything shown to the user) is only touched from
// functions executed by Loop.Run. Other goroutines hand work to the loop with
// Post (fire-and-forget, FIFO) or Send (blocks until the function has run).
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the task queue capacity used when none is configured.
const DefaultQueueSize = 64

// ErrStopped is returned when work is handed to a loop that is no longer running.
var ErrStopped = errors.New("dispatch loop stopped")

// Func is a unit of work executed on the loop. The context it receives
// identifies the current turn of the loop; see Loop.OnLoop.
type Func func(ctx context.Context)

// Poster posts work to a loop without waiting for it.
type Poster interface {
	Post(fn Func) bool
}

// Sender runs work on a loop and waits for it.
type Sender interface {
	Send(ctx context.Context, fn Func) error
}

// task is a queued unit of work. done is nil for posted tasks.
type task struct {
	fn   Func
	done chan struct{}
}

// turn marks a context as belonging to one execution of a task on a loop.
// It is only valid while the task runs.
type turn struct {
	loop   *Loop
	active atomic.Bool
}

type turnKey struct{}

// Loop is a serial task executor. The zero value is not usable; use New.
type Loop struct {
	tasks  chan task
	logger *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}

	executed atomic.Int64
}

// New creates a loop with the given queue capacity.
func New(queueSize int, logger *slog.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		tasks:   make(chan task, queueSize),
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Run drains the task queue until ctx is cancelled or Stop is called.
// Run must be called exactly once; the goroutine calling it becomes the
// loop's main thread.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("dispatch_loop_started")
	defer l.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("dispatch_loop_stopped", "reason", "context_cancelled")
			return ctx.Err()
		case <-l.stopped:
			l.logger.Debug("dispatch_loop_stopped", "reason", "stop_requested")
			return nil
		case t := <-l.tasks:
			l.execute(ctx, t)
		}
	}
}

// execute runs one task with a fresh turn marker.
func (l *Loop) execute(ctx context.Context, t task) {
	tr := &turn{loop: l}
	tr.active.Store(true)
	defer func() {
		tr.active.Store(false)
		l.executed.Add(1)
		if t.done != nil {
			close(t.done)
		}
	}()

	t.fn(context.WithValue(ctx, turnKey{}, tr))
}

// Stop makes Run return after the task it is currently executing.
// Queued tasks are abandoned; pending Send calls return ErrStopped.
// Safe to call multiple times.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopped)
	})
}

// Done is closed once the loop has been stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

// Post enqueues fn for execution on the loop and returns immediately once it
// is queued. It blocks only while the queue is full. Returns false if the
// loop has stopped.
func (l *Loop) Post(fn Func) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}

	select {
	case l.tasks <- task{fn: fn}:
		return true
	case <-l.stopped:
		return false
	}
}

// Send executes fn on the loop and waits for it to complete.
//
// If ctx already belongs to a turn of this loop, fn runs inline: the caller
// is the main thread, and queuing would deadlock.
func (l *Loop) Send(ctx context.Context, fn Func) error {
	if l.OnLoop(ctx) {
		fn(ctx)
		return nil
	}

	t := task{fn: fn, done: make(chan struct{})}
	select {
	case l.tasks <- t:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-t.done:
		return nil
	case <-l.stopped:
		// Stop may race with completion of this very task.
		select {
		case <-t.done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnLoop reports whether ctx belongs to a task that is executing on this
// loop right now. Contexts captured from an earlier turn do not qualify.
func (l *Loop) OnLoop(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	tr, ok := ctx.Value(turnKey{}).(*turn)
	return ok && tr.loop == l && tr.active.Load()
}

// Executed returns the number of tasks that have run on the loop.
func (l *Loop) Executed() int64 {
	return l.executed.Load()
}
