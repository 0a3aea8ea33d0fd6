// Package stats tracks confirmation round statistics for the exit summary.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// RoundStats accumulates confirmation round outcomes and latencies.
//
// Thread-safe: all fields are protected by mu.
type RoundStats struct {
	mu        sync.Mutex
	startTime time.Time

	rounds    int64
	outcomes  map[string]int64
	skips     map[string]int64
	codes     map[int]int64
	digest    *tdigest.TDigest
	maxRound  time.Duration
	confirmed time.Time
}

// RoundSnapshot is a point-in-time copy of RoundStats.
type RoundSnapshot struct {
	Elapsed       time.Duration
	Rounds        int64
	Outcomes      map[string]int64
	Skips         map[string]int64
	StatusCodes   map[int]int64
	LatencyP50    time.Duration
	LatencyP95    time.Duration
	LatencyP99    time.Duration
	LatencyMax    time.Duration
	LastConfirmed time.Time
}

// NewRoundStats creates an empty RoundStats.
func NewRoundStats() *RoundStats {
	return &RoundStats{
		startTime: time.Now(),
		outcomes:  make(map[string]int64),
		skips:     make(map[string]int64),
		codes:     make(map[int]int64),
		digest:    tdigest.NewWithCompression(100),
	}
}

// RecordRound records a finished round.
func (s *RoundStats) RecordRound(outcome string, statusCode int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rounds++
	s.outcomes[outcome]++
	s.codes[statusCode]++
	s.digest.Add(float64(latency.Nanoseconds()), 1)
	if latency > s.maxRound {
		s.maxRound = latency
	}
}

// RecordSkip records a tick that issued no network call.
func (s *RoundStats) RecordSkip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skips[reason]++
}

// RecordConfirmed records the latest accepted confirmation time.
func (s *RoundStats) RecordConfirmed(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.After(s.confirmed) {
		s.confirmed = at
	}
}

// Snapshot returns a copy of the current statistics.
func (s *RoundStats) Snapshot() *RoundSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &RoundSnapshot{
		Elapsed:       time.Since(s.startTime),
		Rounds:        s.rounds,
		Outcomes:      make(map[string]int64, len(s.outcomes)),
		Skips:         make(map[string]int64, len(s.skips)),
		StatusCodes:   make(map[int]int64, len(s.codes)),
		LatencyMax:    s.maxRound,
		LastConfirmed: s.confirmed,
	}
	for k, v := range s.outcomes {
		snap.Outcomes[k] = v
	}
	for k, v := range s.skips {
		snap.Skips[k] = v
	}
	for k, v := range s.codes {
		snap.StatusCodes[k] = v
	}

	if s.rounds > 0 {
		snap.LatencyP50 = time.Duration(s.digest.Quantile(0.50))
		snap.LatencyP95 = time.Duration(s.digest.Quantile(0.95))
		snap.LatencyP99 = time.Duration(s.digest.Quantile(0.99))
	}
	return snap
}

// TotalSkips returns the number of skipped ticks across all reasons.
func (s *RoundSnapshot) TotalSkips() int64 {
	var n int64
	for _, v := range s.Skips {
		n += v
	}
	return n
}

// sortedCodes returns the status codes seen, ascending.
func (s *RoundSnapshot) sortedCodes() []int {
	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
