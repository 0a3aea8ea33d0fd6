// Package heartbeat provides the fixed-interval trigger that drives liveness
// confirmation rounds.
package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-tash-host/internal/dispatch"
)

// DefaultInterval is the period between ticks.
const DefaultInterval = 7 * time.Second

// TickFunc handles one tick. It runs on the loop the clock posts to.
type TickFunc func(ctx context.Context, at time.Time)

// Clock fires a tick every interval and delivers it through a dispatch.Poster.
//
// At most one tick is queued or executing at any time: a tick that fires
// while the previous one has not been handled is dropped. No tick is handled
// after Stop returns.
type Clock struct {
	interval time.Duration
	poster   dispatch.Poster
	onTick   TickFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	running atomic.Bool

	pending atomic.Bool
	fired   atomic.Int64
	dropped atomic.Int64
}

// New creates a stopped clock. A non-positive interval selects DefaultInterval.
func New(interval time.Duration, poster dispatch.Poster, onTick TickFunc) *Clock {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Clock{
		interval: interval,
		poster:   poster,
		onTick:   onTick,
	}
}

// Start begins firing ticks. Calling Start on a running clock is a no-op.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running.Store(true)

	go c.run(ctx)
}

// Stop halts the clock. It does not wait for the ticker goroutine, so it may
// be called from the loop the clock posts to; a tick already queued becomes a
// no-op. Safe to call repeatedly and on a clock that was never started.
func (c *Clock) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.running.Store(false)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Running reports whether the clock has been started and not stopped.
func (c *Clock) Running() bool {
	return c.running.Load()
}

// Interval returns the tick period.
func (c *Clock) Interval() time.Duration {
	return c.interval
}

// Stats returns how many ticks fired and how many were dropped because the
// previous tick was still pending.
func (c *Clock) Stats() (fired, dropped int64) {
	return c.fired.Load(), c.dropped.Load()
}

func (c *Clock) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.C:
			c.fire(at)
		}
	}
}

// fire posts one tick unless another is still pending.
func (c *Clock) fire(at time.Time) {
	c.fired.Add(1)
	if !c.pending.CompareAndSwap(false, true) {
		c.dropped.Add(1)
		return
	}

	ok := c.poster.Post(func(ctx context.Context) {
		defer c.pending.Store(false)
		// A tick queued before Stop must not run after it.
		if !c.running.Load() {
			return
		}
		c.onTick(ctx, at)
	})
	if !ok {
		c.pending.Store(false)
	}
}
