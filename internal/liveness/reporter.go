package liveness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-tash-host/internal/dispatch"
	"github.com/randomizedcoder/go-tash-host/internal/heartbeat"
	"github.com/randomizedcoder/go-tash-host/internal/monitor"
)

// Window title used for fatal errors.
const Title = "Tash Host"

// DefaultShutdownTimeout bounds the final confirm-dead call.
const DefaultShutdownTimeout = 3 * time.Second

// Dispatcher is the main loop as seen by the reporter.
type Dispatcher interface {
	dispatch.Poster
	dispatch.Sender
}

// Stamper is the activity tracker as seen by the reporter.
type Stamper interface {
	StampNow(ctx context.Context) error
	LastStamp() time.Time
}

// RoundOutcome classifies a finished confirmation round.
type RoundOutcome string

const (
	OutcomeConfirmed RoundOutcome = "confirmed"
	OutcomeLost      RoundOutcome = "lost"
	OutcomeFailed    RoundOutcome = "failed"
)

// Skip reasons reported through Callbacks.OnRoundSkipped.
const (
	SkipUnchanged = "unchanged"
	SkipInFlight  = "in_flight"
)

// Callbacks contains optional callback functions for reporter events.
// They run on the main loop.
type Callbacks struct {
	// OnStateChange is called when the reporter state changes.
	OnStateChange func(oldState, newState State)

	// OnRoundComplete is called when a round's result has been applied.
	OnRoundComplete func(outcome RoundOutcome, statusCode int, latency time.Duration)

	// OnRoundSkipped is called when a tick issues no network call.
	OnRoundSkipped func(reason string)

	// OnConfirmed is called when the confirmation record advances.
	OnConfirmed func(at time.Time)
}

// Config holds configuration for creating a new Reporter.
type Config struct {
	Identity      monitor.ProcessIdentity
	Title         string
	LaunchCommand string
	InstanceID    uuid.UUID

	Interval        time.Duration // tick period (default: 7s)
	ShutdownTimeout time.Duration // confirm-dead bound (default: 3s)

	Monitor  monitor.Client
	Notifier Notifier
	Loop     Dispatcher
	Tracker  Stamper
	Logger   *slog.Logger

	Callbacks Callbacks
}

// Reporter proves this process's liveness to the monitor.
//
// Fields below the marker are confined to the main loop and carry no lock.
type Reporter struct {
	id              monitor.ProcessIdentity
	registration    monitor.Registration
	shutdownTimeout time.Duration

	monitor   monitor.Client
	notifier  Notifier
	loop      Dispatcher
	tracker   Stamper
	logger    *slog.Logger
	callbacks Callbacks
	clock     *heartbeat.Clock

	// Round cancellation; cancelled when reporting stops.
	roundCtx    context.Context
	cancelRound context.CancelFunc
	rounds      sync.WaitGroup

	fatal        chan error
	fatalOnce    sync.Once
	shutdownOnce sync.Once
	stopping     atomic.Bool // set first thing in Shutdown
	registered   atomic.Bool
	stateMirror  atomic.Int32

	// --- main loop only ---
	state        State
	record       time.Time
	inFlight     bool
	shuttingDown bool
}

// New creates a Reporter in StateUnregistered.
func New(cfg Config) *Reporter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.InstanceID == uuid.Nil {
		cfg.InstanceID = uuid.New()
	}

	roundCtx, cancel := context.WithCancel(context.Background())
	r := &Reporter{
		id: cfg.Identity,
		registration: monitor.Registration{
			ProcessID:     cfg.Identity,
			Title:         cfg.Title,
			LaunchCommand: cfg.LaunchCommand,
			InstanceID:    cfg.InstanceID,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		monitor:         cfg.Monitor,
		notifier:        cfg.Notifier,
		loop:            cfg.Loop,
		tracker:         cfg.Tracker,
		logger:          cfg.Logger.With("process_id", int(cfg.Identity)),
		callbacks:       cfg.Callbacks,
		roundCtx:        roundCtx,
		cancelRound:     cancel,
		fatal:           make(chan error, 1),
	}
	r.clock = heartbeat.New(cfg.Interval, cfg.Loop, r.onTick)
	return r
}

// Start checks connectivity, registers and starts the clock. It performs
// network calls and must not be called from the main loop.
//
// Connectivity and registration failures are fatal: they are shown with
// ShowFatalError, signalled on Fatal and returned. Cancelling ctx once
// registration succeeded is not a failure; Shutdown still confirms dead.
func (r *Reporter) Start(ctx context.Context) error {
	r.setState(ctx, StateRegistering)

	if err := r.monitor.EnsureRunning(ctx); err != nil {
		cerr := newConnectivityError(err)
		r.logger.Error("monitor_unreachable", "error", err)
		r.fail(ctx, StateUnregistered, "Could not connect to Tash", strings.Join(cerr.Messages, "\n"), cerr)
		return cerr
	}

	code, err := r.monitor.Register(ctx, r.registration)
	if err != nil || code != http.StatusCreated {
		rerr := &RegistrationRejectedError{StatusCode: code, Err: err}
		r.logger.Error("registration_rejected", "status", code, "error", err)
		r.fail(ctx, StateUnregistered, Title, "Could not make Tash registration: "+statusText(code), rerr)
		return rerr
	}

	r.registered.Store(true)
	r.logger.Info("monitor_registered",
		"title", r.registration.Title,
		"instance_id", r.registration.InstanceID.String(),
	)

	// The task may run after Send gave up on ctx, even after Shutdown began.
	err = r.loop.Send(ctx, func(lctx context.Context) {
		if r.stopping.Load() {
			return
		}
		r.transition(StateRegistered)
		r.notifier.ShowStatus(fmt.Sprintf("Registered with Tash as process %s", r.id))
		r.notifier.ShowLastConfirmedTime(r.record)
		r.clock.Start()
		// Shutdown may have stopped the clock between the check and Start.
		if r.stopping.Load() {
			r.clock.Stop()
		}
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		r.logger.Debug("start_interrupted", "error", err)
		return nil
	default:
		return fmt.Errorf("start reporting: %w", err)
	}
}

// onTick runs one confirmation round decision on the main loop.
func (r *Reporter) onTick(ctx context.Context, _ time.Time) {
	if r.shuttingDown || !r.state.IsReporting() {
		return
	}
	if r.inFlight {
		r.skip(SkipInFlight)
		return
	}

	var stampErr error
	if err := r.loop.Send(ctx, func(lctx context.Context) {
		stampErr = r.tracker.StampNow(lctx)
	}); err != nil {
		return
	}
	if stampErr != nil {
		r.logger.Error("activity_stamp_failed", "error", stampErr)
		r.failOnLoop(StateStopped, Title, "Confirmation to Tash was not requested from the main thread", stampErr)
		return
	}

	stamp := r.tracker.LastStamp()
	if stamp.Equal(r.record) {
		r.skip(SkipUnchanged)
		return
	}

	r.inFlight = true
	r.rounds.Add(1)
	go r.confirm(r.roundCtx, stamp)
}

// roundResult is what a round hands back to the main loop.
type roundResult struct {
	stamp      time.Time
	statusCode int
	present    bool
	err        error
	cancelled  bool
	latency    time.Duration
}

// confirm performs the network half of a round off the main loop.
func (r *Reporter) confirm(ctx context.Context, stamp time.Time) {
	defer r.rounds.Done()

	res := roundResult{stamp: stamp}
	start := time.Now()
	defer func() {
		res.latency = time.Since(start)
		if !r.loop.Post(func(lctx context.Context) { r.apply(lctx, res) }) {
			r.logger.Debug("round_result_dropped", "reason", "loop_stopped")
		}
	}()

	if ctx.Err() != nil {
		res.cancelled = true
		return
	}
	code, err := r.monitor.ConfirmAlive(ctx, r.id, stamp, monitor.StatusBusy)
	res.statusCode = code
	if ctx.Err() != nil {
		res.cancelled = true
		return
	}
	if err != nil || code != http.StatusNoContent {
		res.err = &ConfirmationProtocolError{StatusCode: code, Err: err}
		return
	}

	// Acceptance alone does not prove the monitor still lists us.
	roster, err := r.monitor.ListRegistered(ctx)
	if ctx.Err() != nil {
		res.cancelled = true
		return
	}
	if err != nil {
		res.err = &ConfirmationProtocolError{StatusCode: code, Err: fmt.Errorf("fetch roster: %w", err)}
		return
	}
	res.present = monitor.Contains(roster, r.id)
}

// apply folds a round result into main-loop state.
func (r *Reporter) apply(_ context.Context, res roundResult) {
	r.inFlight = false

	if res.cancelled || r.shuttingDown || !r.state.IsReporting() {
		r.logger.Debug("round_result_ignored",
			"cancelled", res.cancelled,
			"state", r.state.String(),
		)
		return
	}

	switch {
	case res.err != nil:
		r.logger.Warn("confirmation_failed",
			"status", res.statusCode,
			"error", res.err,
		)
		r.roundComplete(OutcomeFailed, res)
		r.haltReporting(res.err)

	case !res.present:
		warn := &RosterDesyncError{Identity: r.id}
		r.logger.Warn("roster_desync", "error", warn)
		if r.state != StateLost {
			r.transition(StateLost)
			r.notifier.ShowStatus("Tash host no longer among Tash processes")
		}
		r.roundComplete(OutcomeLost, res)

	default:
		if res.stamp.After(r.record) {
			r.record = res.stamp
			r.notifier.ShowLastConfirmedTime(r.record)
			if r.callbacks.OnConfirmed != nil {
				r.callbacks.OnConfirmed(r.record)
			}
		}
		if r.state == StateLost {
			r.transition(StateRegistered)
			r.notifier.ShowStatus("Tash host is among Tash processes again")
		}
		r.logger.Debug("confirmation_accepted",
			"confirmed_at", r.record,
			"latency_ms", res.latency.Milliseconds(),
		)
		r.roundComplete(OutcomeConfirmed, res)
	}
}

// haltReporting stops the clock after a protocol error. The process keeps
// running.
func (r *Reporter) haltReporting(err error) {
	r.clock.Stop()
	r.transition(StateStopped)

	code := 0
	var perr *ConfirmationProtocolError
	if errors.As(err, &perr) {
		code = perr.StatusCode
	}
	r.notifier.ShowStatus("Could not confirm status to Tash: " + statusText(code))
}

// Shutdown stops the clock, cancels outstanding rounds and tells the monitor
// this process is going away. The confirm-dead call is bounded by the
// shutdown timeout and its failure is logged, never returned. Idempotent.
func (r *Reporter) Shutdown(ctx context.Context) {
	r.shutdownOnce.Do(func() {
		r.stopping.Store(true)
		r.clock.Stop()
		r.cancelRound()

		if err := r.loop.Send(ctx, func(lctx context.Context) {
			r.clock.Stop()
			r.shuttingDown = true
			r.transition(StateShuttingDown)
		}); err != nil {
			r.logger.Debug("shutdown_state_not_recorded", "error", err)
		}

		if r.registered.Load() {
			dctx, cancel := context.WithTimeout(ctx, r.shutdownTimeout)
			if err := r.monitor.ConfirmDead(dctx, r.id); err != nil {
				r.logger.Warn("confirm_dead_failed", "error", err)
			} else {
				r.logger.Info("confirm_dead_sent")
			}
			cancel()
		}

		r.waitRounds(r.shutdownTimeout)

		if err := r.loop.Send(ctx, func(lctx context.Context) {
			r.transition(StateUnregistered)
		}); err != nil {
			r.logger.Debug("unregistered_state_not_recorded", "error", err)
		}
	})
}

// waitRounds waits for round goroutines with a bound.
func (r *Reporter) waitRounds(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		r.rounds.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		r.logger.Warn("round_drain_timeout", "timeout", timeout.String())
	}
}

// Fatal receives the error that made the reporter request process exit.
func (r *Reporter) Fatal() <-chan error {
	return r.fatal
}

// State returns the current state. Safe from any goroutine.
func (r *Reporter) State() State {
	return State(r.stateMirror.Load())
}

// ClockRunning reports whether confirmation ticks are being generated.
func (r *Reporter) ClockRunning() bool {
	return r.clock.Running()
}

// TickStats returns how many ticks the clock fired and how many it coalesced.
func (r *Reporter) TickStats() (fired, dropped int64) {
	return r.clock.Stats()
}

// LastConfirmed returns the confirmation record, read on the main loop.
func (r *Reporter) LastConfirmed(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := r.loop.Send(ctx, func(context.Context) { t = r.record })
	return t, err
}

// Identity returns the process identity being reported.
func (r *Reporter) Identity() monitor.ProcessIdentity {
	return r.id
}

// setState transitions on the main loop from any goroutine.
func (r *Reporter) setState(ctx context.Context, s State) {
	if err := r.loop.Send(ctx, func(context.Context) { r.transition(s) }); err != nil {
		r.logger.Debug("state_not_recorded", "state", s.String(), "error", err)
	}
}

// transition must run on the main loop.
func (r *Reporter) transition(s State) {
	old := r.state
	if old == s {
		return
	}
	r.state = s
	r.stateMirror.Store(int32(s))
	r.logger.Info("state_changed", "from", old.String(), "to", s.String())
	if r.callbacks.OnStateChange != nil {
		r.callbacks.OnStateChange(old, s)
	}
}

// fail reports a fatal error from off the main loop.
func (r *Reporter) fail(ctx context.Context, s State, title, message string, err error) {
	if sendErr := r.loop.Send(ctx, func(context.Context) {
		r.failOnLoop(s, title, message, err)
	}); sendErr != nil {
		r.requestExit(err)
	}
}

// failOnLoop stops reporting, shows the fatal error and requests exit.
func (r *Reporter) failOnLoop(s State, title, message string, err error) {
	r.clock.Stop()
	r.cancelRound()
	r.transition(s)
	r.notifier.ShowFatalError(title, message)
	r.requestExit(err)
}

func (r *Reporter) requestExit(err error) {
	r.fatalOnce.Do(func() {
		r.fatal <- err
	})
}

func (r *Reporter) skip(reason string) {
	r.logger.Debug("confirmation_skipped", "reason", reason)
	if r.callbacks.OnRoundSkipped != nil {
		r.callbacks.OnRoundSkipped(reason)
	}
}

func (r *Reporter) roundComplete(outcome RoundOutcome, res roundResult) {
	if r.callbacks.OnRoundComplete != nil {
		r.callbacks.OnRoundComplete(outcome, res.statusCode, res.latency)
	}
}
