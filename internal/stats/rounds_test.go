package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRoundStats_Empty(t *testing.T) {
	snap := NewRoundStats().Snapshot()

	if snap.Rounds != 0 || snap.TotalSkips() != 0 {
		t.Errorf("empty snapshot = %+v", snap)
	}
	if snap.LatencyP50 != 0 || snap.LatencyMax != 0 {
		t.Errorf("latency on empty stats: p50=%v max=%v", snap.LatencyP50, snap.LatencyMax)
	}
	if !snap.LastConfirmed.IsZero() {
		t.Errorf("LastConfirmed = %v, want zero", snap.LastConfirmed)
	}
}

func TestRoundStats_RecordRound(t *testing.T) {
	s := NewRoundStats()

	for i := 1; i <= 100; i++ {
		s.RecordRound("confirmed", 204, time.Duration(i)*time.Millisecond)
	}
	s.RecordRound("lost", 204, 5*time.Millisecond)
	s.RecordRound("failed", 403, 2*time.Millisecond)

	snap := s.Snapshot()
	if snap.Rounds != 102 {
		t.Errorf("Rounds = %d, want 102", snap.Rounds)
	}
	wantOutcomes := map[string]int64{"confirmed": 100, "lost": 1, "failed": 1}
	if diff := cmp.Diff(wantOutcomes, snap.Outcomes); diff != "" {
		t.Errorf("Outcomes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[int]int64{204: 101, 403: 1}, snap.StatusCodes); diff != "" {
		t.Errorf("StatusCodes mismatch (-want +got):\n%s", diff)
	}
	if snap.LatencyMax != 100*time.Millisecond {
		t.Errorf("LatencyMax = %v, want 100ms", snap.LatencyMax)
	}

	// t-digest quantiles are approximate.
	checkRange := func(name string, got, lo, hi time.Duration) {
		t.Helper()
		if got < lo || got > hi {
			t.Errorf("%s = %v, want within [%v, %v]", name, got, lo, hi)
		}
	}
	checkRange("P50", snap.LatencyP50, 40*time.Millisecond, 60*time.Millisecond)
	checkRange("P95", snap.LatencyP95, 85*time.Millisecond, 101*time.Millisecond)
	checkRange("P99", snap.LatencyP99, 90*time.Millisecond, 101*time.Millisecond)
	if snap.LatencyP50 > snap.LatencyP95 || snap.LatencyP95 > snap.LatencyP99 {
		t.Errorf("percentiles not ordered: %v %v %v", snap.LatencyP50, snap.LatencyP95, snap.LatencyP99)
	}
}

func TestRoundStats_Skips(t *testing.T) {
	s := NewRoundStats()
	s.RecordSkip("unchanged")
	s.RecordSkip("unchanged")
	s.RecordSkip("in_flight")

	snap := s.Snapshot()
	if diff := cmp.Diff(map[string]int64{"unchanged": 2, "in_flight": 1}, snap.Skips); diff != "" {
		t.Errorf("Skips mismatch (-want +got):\n%s", diff)
	}
	if snap.TotalSkips() != 3 {
		t.Errorf("TotalSkips() = %d, want 3", snap.TotalSkips())
	}
}

func TestRoundStats_RecordConfirmedKeepsLatest(t *testing.T) {
	s := NewRoundStats()
	later := time.Date(2026, 10, 15, 12, 0, 10, 0, time.UTC)

	s.RecordConfirmed(later)
	s.RecordConfirmed(later.Add(-5 * time.Second))

	if got := s.Snapshot().LastConfirmed; !got.Equal(later) {
		t.Errorf("LastConfirmed = %v, want %v", got, later)
	}
}

func TestRoundStats_SnapshotIsCopy(t *testing.T) {
	s := NewRoundStats()
	s.RecordRound("confirmed", 204, time.Millisecond)

	snap := s.Snapshot()
	snap.Outcomes["confirmed"] = 99

	if got := s.Snapshot().Outcomes["confirmed"]; got != 1 {
		t.Errorf("mutating a snapshot changed the stats: %d", got)
	}
}

func TestRoundStats_Concurrent(t *testing.T) {
	s := NewRoundStats()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RecordRound("confirmed", 204, time.Millisecond)
				s.RecordSkip("unchanged")
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	if snap.Rounds != 400 || snap.TotalSkips() != 400 {
		t.Errorf("Rounds=%d skips=%d, want 400 each", snap.Rounds, snap.TotalSkips())
	}
}
