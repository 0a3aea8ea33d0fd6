// Package metrics provides Prometheus metrics for tash-host.
//
// All collectors belong to a Collector instance and are registered with the
// registry it was created with, so tests can use an isolated registry.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "tash_host"

// Latency buckets for monitor round trips (seconds).
var roundTripBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
	0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version    string
	MonitorURL string
	Title      string
	ProcessID  int
	Interval   time.Duration

	// States lists every reporter state name so the state gauge exports a
	// zero for the inactive ones.
	States []string

	// Optional live counters read at scrape time.
	TickStats    func() (fired, dropped int64)
	LoopExecuted func() int64
}

// Collector manages all Prometheus metrics for the host.
type Collector struct {
	info              *prometheus.GaugeVec
	intervalSeconds   prometheus.Gauge
	state             *prometheus.GaugeVec
	registered        prometheus.Gauge
	roundsTotal       *prometheus.CounterVec
	roundsSkipped     *prometheus.CounterVec
	responsesTotal    *prometheus.CounterVec
	roundTripSeconds  prometheus.Histogram
	lastConfirmedTime prometheus.Gauge

	mu     sync.Mutex
	states []string
}

// NewCollectorWithRegistry creates a collector registered with registry.
// The host keeps its own registry so the default one stays untouched.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "info",
				Help:      "Information about the host (value always 1)",
			},
			[]string{"version", "monitor_url", "title", "process_id"},
		),
		intervalSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "confirmation_interval_seconds",
			Help:      "Configured liveness confirmation interval",
		}),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "state",
				Help:      "Current reporter state (1 for the active state)",
			},
			[]string{"state"},
		),
		registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "registered",
			Help:      "Whether the monitor currently lists this process (1) or not (0)",
		}),
		roundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "confirmation_rounds_total",
				Help:      "Confirmation rounds by outcome",
			},
			[]string{"outcome"},
		),
		roundsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "confirmation_rounds_skipped_total",
				Help:      "Ticks that issued no network call, by reason",
			},
			[]string{"reason"},
		),
		responsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "monitor_responses_total",
				Help:      "Confirmation responses by HTTP status code (0 = no response)",
			},
			[]string{"code"},
		),
		roundTripSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "confirmation_round_trip_seconds",
			Help:      "Duration of the network half of a confirmation round",
			Buckets:   roundTripBuckets,
		}),
		lastConfirmedTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_confirmed_timestamp_seconds",
			Help:      "Unix time of the last accepted confirmation (0 = never)",
		}),
		states: append([]string(nil), cfg.States...),
	}

	registry.MustRegister(
		c.info,
		c.intervalSeconds,
		c.state,
		c.registered,
		c.roundsTotal,
		c.roundsSkipped,
		c.responsesTotal,
		c.roundTripSeconds,
		c.lastConfirmedTime,
	)

	if cfg.TickStats != nil {
		tickStats := cfg.TickStats
		registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "heartbeat_ticks_total",
				Help:      "Heartbeat ticks generated",
			}, func() float64 {
				fired, _ := tickStats()
				return float64(fired)
			}),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "heartbeat_ticks_dropped_total",
				Help:      "Heartbeat ticks dropped because the previous one was still queued",
			}, func() float64 {
				_, dropped := tickStats()
				return float64(dropped)
			}),
		)
	}
	if cfg.LoopExecuted != nil {
		executed := cfg.LoopExecuted
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "main_loop_tasks_total",
			Help:      "Tasks executed on the main loop",
		}, func() float64 { return float64(executed()) }))
	}

	// Set initial values
	c.info.WithLabelValues(cfg.Version, cfg.MonitorURL, cfg.Title, strconv.Itoa(cfg.ProcessID)).Set(1)
	c.intervalSeconds.Set(cfg.Interval.Seconds())
	for _, s := range c.states {
		c.state.WithLabelValues(s).Set(0)
	}

	return c
}

// SetState marks state as the active reporter state.
func (c *Collector) SetState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	known := false
	for _, s := range c.states {
		if s == state {
			known = true
		}
		c.state.WithLabelValues(s).Set(0)
	}
	if !known {
		c.states = append(c.states, state)
	}
	c.state.WithLabelValues(state).Set(1)
}

// SetRegistered records whether the monitor lists this process.
func (c *Collector) SetRegistered(registered bool) {
	if registered {
		c.registered.Set(1)
		return
	}
	c.registered.Set(0)
}

// RecordRound records a finished confirmation round.
func (c *Collector) RecordRound(outcome string, statusCode int, latency time.Duration) {
	c.roundsTotal.WithLabelValues(outcome).Inc()
	c.responsesTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.roundTripSeconds.Observe(latency.Seconds())
}

// RecordSkip records a tick that issued no network call.
func (c *Collector) RecordSkip(reason string) {
	c.roundsSkipped.WithLabelValues(reason).Inc()
}

// SetLastConfirmed records the time of the last accepted confirmation.
func (c *Collector) SetLastConfirmed(at time.Time) {
	if at.IsZero() {
		c.lastConfirmedTime.Set(0)
		return
	}
	c.lastConfirmedTime.Set(float64(at.UnixNano()) / 1e9)
}
