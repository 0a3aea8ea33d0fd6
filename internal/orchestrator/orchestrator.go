// Package orchestrator wires the host together: main loop, activity tracker,
// monitor client, liveness reporter, presentation, metrics and shutdown.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-tash-host/internal/activity"
	"github.com/randomizedcoder/go-tash-host/internal/config"
	"github.com/randomizedcoder/go-tash-host/internal/dispatch"
	"github.com/randomizedcoder/go-tash-host/internal/liveness"
	"github.com/randomizedcoder/go-tash-host/internal/logging"
	"github.com/randomizedcoder/go-tash-host/internal/metrics"
	"github.com/randomizedcoder/go-tash-host/internal/monitor"
	"github.com/randomizedcoder/go-tash-host/internal/notify"
	"github.com/randomizedcoder/go-tash-host/internal/preflight"
	"github.com/randomizedcoder/go-tash-host/internal/stats"
	"github.com/randomizedcoder/go-tash-host/internal/tui"
)

// Extra time allowed for shutdown beyond the confirm-dead bound.
const shutdownGrace = 2 * time.Second

// Presenter is a notifier that can also show the reporter state.
type Presenter interface {
	liveness.Notifier
	ShowState(state liveness.State)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMonitor replaces the HTTP monitor client.
func WithMonitor(client monitor.Client) Option {
	return func(o *Orchestrator) { o.client = client }
}

// WithOutput sets where the banner, console notifications and exit summary
// are written (default: stdout).
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// WithVersion sets the version reported in metrics.
func WithVersion(version string) Option {
	return func(o *Orchestrator) { o.version = version }
}

// WithIdentity overrides the process identity (default: os.Getpid).
func WithIdentity(id monitor.ProcessIdentity) Option {
	return func(o *Orchestrator) { o.identity = id }
}

// Orchestrator coordinates all components of the host.
type Orchestrator struct {
	config   *config.Config
	logger   *slog.Logger
	out      io.Writer
	version  string
	identity monitor.ProcessIdentity

	loop          *dispatch.Loop
	tracker       *activity.Tracker
	client        monitor.Client
	reporter      *liveness.Reporter
	status        *logging.StatusBuffer
	rounds        *stats.RoundStats
	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server

	presenter Presenter
	program   *tea.Program
	tuiDone   chan struct{}
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		out:      os.Stdout,
		version:  "dev",
		identity: monitor.ProcessIdentity(os.Getpid()),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.loop = dispatch.New(dispatch.DefaultQueueSize, logger)
	o.tracker = activity.NewTracker(o.loop)
	o.status = logging.NewStatusBuffer(logger)
	o.rounds = stats.NewRoundStats()
	o.registry = prometheus.NewRegistry()
	o.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return o
}

// Run executes the host. It blocks until a signal, the user closing the
// window, ctx being cancelled or a fatal error, and then deregisters.
func (o *Orchestrator) Run(ctx context.Context) error {
	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			MonitorURL:    o.config.MonitorURL,
			MonitorLaunch: o.config.MonitorLaunch,
			LogDir:        o.config.LogDir,
		})
		preflight.WriteResults(o.out, result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed (use -skip-preflight to override)")
		}
	}

	if o.client == nil {
		client, err := monitor.NewHTTPClient(monitor.HTTPConfig{
			BaseURL:       o.config.MonitorURL,
			Timeout:       o.config.RequestTimeout,
			UserAgent:     o.config.UserAgent,
			H2C:           o.config.MonitorH2C,
			LaunchCommand: o.config.MonitorLaunch,
			LaunchTimeout: o.config.MonitorLaunchTimeout,
			Backoff: monitor.BackoffConfig{
				Initial:    o.config.BackoffInitial,
				Max:        o.config.BackoffMax,
				Multiplier: o.config.BackoffMultiply,
				JitterPct:  0.4,
			},
			BackoffSeed: int64(o.identity),
		}, o.logger)
		if err != nil {
			return fmt.Errorf("create monitor client: %w", err)
		}
		o.client = client
	}

	// Setup signal handling
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if o.config.Check {
		return o.check(ctx)
	}

	// The loop outlives ctx so shutdown can still run on it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go o.loop.Run(loopCtx)

	o.presenter = o.startPresenter()
	o.reporter = o.newReporter()
	o.metrics = o.newCollector()

	if o.config.MetricsAddr != "" {
		if err := o.startMetrics(); err != nil {
			o.stopPresenter()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	o.logger.Info("starting",
		"version", o.version,
		"process_id", int(o.identity),
		"monitor_url", o.config.MonitorURL,
		"interval", o.config.Interval.String(),
		"metrics_addr", o.config.MetricsAddr,
	)

	runErr := o.reporter.Start(ctx)
	if runErr == nil {
		runErr = o.wait(ctx)
	} else if ctx.Err() == nil {
		o.awaitDismiss(ctx)
	}

	finalState := o.reporter.State()
	o.shutdown()

	// Print exit summary
	fmt.Fprint(o.out, o.exitSummary(finalState, runErr))

	return runErr
}

// wait blocks until something ends the run. A fatal reporter error is
// returned once the user has seen it.
func (o *Orchestrator) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		o.logger.Info("received_signal_or_cancel", "cause", context.Cause(ctx))
		return nil
	case <-o.tuiDone:
		o.logger.Info("window_closed")
		return nil
	case err := <-o.reporter.Fatal():
		o.logger.Error("reporter_fatal", "error", err)
		o.awaitDismiss(ctx)
		return err
	}
}

// awaitDismiss keeps the fatal dialog up until the user closes the window.
func (o *Orchestrator) awaitDismiss(ctx context.Context) {
	if o.tuiDone == nil {
		return
	}
	select {
	case <-o.tuiDone:
	case <-ctx.Done():
	}
}

// shutdown deregisters and stops every component.
func (o *Orchestrator) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.config.ShutdownTimeout+shutdownGrace)
	defer cancel()

	o.reporter.Shutdown(shutdownCtx)
	o.stopPresenter()

	if o.metricsServer != nil {
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}

	if o.config.MetricsDump != "" {
		if err := metrics.DumpFile(o.config.MetricsDump, o.registry); err != nil {
			o.logger.Warn("metrics_dump_failed", "path", o.config.MetricsDump, "error", err)
		} else {
			o.logger.Info("metrics_dumped", "path", o.config.MetricsDump)
		}
	}

	o.loop.Stop()
}

// check probes the monitor and lists its roster without registering.
func (o *Orchestrator) check(ctx context.Context) error {
	fmt.Fprintf(o.out, "Checking monitor at %s\n", o.config.MonitorURL)

	if err := o.client.EnsureRunning(ctx); err != nil {
		return fmt.Errorf("monitor check failed: %w", err)
	}
	roster, err := o.client.ListRegistered(ctx)
	if err != nil {
		return fmt.Errorf("monitor check failed: %w", err)
	}

	fmt.Fprintf(o.out, "  ✓ monitor reachable, %d registered process(es)\n", len(roster))
	for _, p := range roster {
		fmt.Fprintf(o.out, "    %-8s %-6s %s\n", p.ProcessID, p.Status, p.Title)
	}
	return nil
}

// startPresenter starts the TUI, or returns a console notifier when the TUI
// is disabled.
func (o *Orchestrator) startPresenter() Presenter {
	if !o.config.TUIEnabled {
		printBanner(o.out, o.config, o.identity)
		return notify.NewConsole(o.out, o.status)
	}

	model := tui.New(tui.Config{
		Title:       o.config.Title,
		ProcessID:   int(o.identity),
		MonitorURL:  o.config.MonitorURL,
		MetricsAddr: o.config.MetricsAddr,
		Interval:    o.config.Interval,
		Status:      o.status,
	})
	o.program = tea.NewProgram(model, tea.WithAltScreen())
	o.tuiDone = make(chan struct{})

	// Program.Send blocks until Run has started.
	go func() {
		defer close(o.tuiDone)
		if _, err := o.program.Run(); err != nil {
			o.logger.Error("tui_failed", "error", err)
		}
	}()

	return tui.NewNotifier(o.program, o.status)
}

// stopPresenter closes the TUI and waits for it to restore the terminal.
func (o *Orchestrator) stopPresenter() {
	if o.program == nil {
		return
	}
	tui.SendQuit(o.program)
	select {
	case <-o.tuiDone:
	case <-time.After(shutdownGrace):
		o.program.Kill()
		o.logger.Warn("tui_quit_timeout")
	}
}

// newReporter creates the reporter with callbacks feeding metrics, round
// statistics and the state indicator.
func (o *Orchestrator) newReporter() *liveness.Reporter {
	return liveness.New(liveness.Config{
		Identity:        o.identity,
		Title:           o.config.Title,
		LaunchCommand:   launchCommand(),
		Interval:        o.config.Interval,
		ShutdownTimeout: o.config.ShutdownTimeout,
		Monitor:         o.client,
		Notifier:        o.presenter,
		Loop:            o.loop,
		Tracker:         o.tracker,
		Logger:          o.logger,
		Callbacks: liveness.Callbacks{
			OnStateChange:   o.onStateChange,
			OnRoundComplete: o.onRoundComplete,
			OnRoundSkipped:  o.onRoundSkipped,
			OnConfirmed:     o.onConfirmed,
		},
	})
}

// newCollector creates the host metrics on the orchestrator's registry.
func (o *Orchestrator) newCollector() *metrics.Collector {
	states := make([]string, 0, len(liveness.AllStates()))
	for _, s := range liveness.AllStates() {
		states = append(states, s.String())
	}

	c := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:      o.version,
		MonitorURL:   o.config.MonitorURL,
		Title:        o.config.Title,
		ProcessID:    int(o.identity),
		Interval:     o.config.Interval,
		States:       states,
		TickStats:    o.reporter.TickStats,
		LoopExecuted: o.loop.Executed,
	}, o.registry)
	c.SetState(liveness.StateUnregistered.String())
	return c
}

// startMetrics starts the metrics server.
func (o *Orchestrator) startMetrics() error {
	o.metricsServer = metrics.NewServer(o.config.MetricsAddr, o.registry, o.ready, o.logger)
	if err := o.metricsServer.Start(); err != nil {
		return err
	}
	o.logger.Info("metrics_server_started", "addr", o.metricsServer.Addr())
	return nil
}

// ready reports whether the monitor currently accepts our confirmations.
func (o *Orchestrator) ready() error {
	if state := o.reporter.State(); !state.IsReporting() {
		return fmt.Errorf("reporter is %s", state)
	}
	return nil
}

// Callback handlers. They run on the main loop.

func (o *Orchestrator) onStateChange(oldState, newState liveness.State) {
	o.metrics.SetState(newState.String())
	o.metrics.SetRegistered(newState == liveness.StateRegistered)
	o.presenter.ShowState(newState)

	if o.config.Verbose {
		o.logger.Debug("reporter_state_change", "from", oldState.String(), "to", newState.String())
	}
}

func (o *Orchestrator) onRoundComplete(outcome liveness.RoundOutcome, statusCode int, latency time.Duration) {
	o.rounds.RecordRound(string(outcome), statusCode, latency)
	o.metrics.RecordRound(string(outcome), statusCode, latency)
}

func (o *Orchestrator) onRoundSkipped(reason string) {
	o.rounds.RecordSkip(reason)
	o.metrics.RecordSkip(reason)
}

func (o *Orchestrator) onConfirmed(at time.Time) {
	o.rounds.RecordConfirmed(at)
	o.metrics.SetLastConfirmed(at)
}

// exitSummary formats the summary printed at exit.
func (o *Orchestrator) exitSummary(finalState liveness.State, runErr error) string {
	cfg := stats.SummaryConfig{
		Title:       o.config.Title,
		ProcessID:   int(o.identity),
		MonitorURL:  o.config.MonitorURL,
		Interval:    o.config.Interval,
		FinalState:  finalState.String(),
		MetricsAddr: o.config.MetricsAddr,
		MetricsDump: o.config.MetricsDump,
	}
	if runErr != nil {
		cfg.FatalError = runErr.Error()
	}
	return stats.FormatExitSummary(o.rounds.Snapshot(), cfg)
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config, id monitor.ProcessIdentity) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                            tash-host                              ║")
	fmt.Fprintln(w, "║          Liveness reporting to the Tash process monitor           ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Process:     %s (pid %s)\n", cfg.Title, id)
	fmt.Fprintf(w, "  Monitor:     %s\n", cfg.MonitorURL)
	fmt.Fprintf(w, "  Interval:    %s\n", cfg.Interval)
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}

// launchCommand is the command line that started this process.
func launchCommand() string {
	return strings.Join(os.Args, " ")
}

// Reporter returns the liveness reporter for external access.
func (o *Orchestrator) Reporter() *liveness.Reporter {
	return o.reporter
}

// Rounds returns the round statistics for external access.
func (o *Orchestrator) Rounds() *stats.RoundStats {
	return o.rounds
}

// Registry returns the metrics registry for external access.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}
