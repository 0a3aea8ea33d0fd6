// Package liveness implements the client side of the Tash liveness protocol:
// registration, periodic confirmation, roster reconciliation and
// deregistration.
package liveness

// State represents the registration state of the reporter.
type State int32

const (
	// StateUnregistered is the initial and final state.
	StateUnregistered State = iota

	// StateRegistering indicates the monitor is being contacted.
	StateRegistering

	// StateRegistered indicates liveness is being confirmed periodically.
	StateRegistered

	// StateLost indicates the monitor accepted a confirmation but no longer
	// lists this process. Confirmation continues.
	StateLost

	// StateStopped indicates reporting was halted after a protocol error.
	StateStopped

	// StateShuttingDown indicates deregistration is in progress.
	StateShuttingDown
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateLost:
		return "lost"
	case StateStopped:
		return "stopped"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// IsReporting returns true if confirmation rounds run in this state.
func (s State) IsReporting() bool {
	return s == StateRegistered || s == StateLost
}

// IsDegraded returns true if the state should be flagged to the user.
func (s State) IsDegraded() bool {
	return s == StateLost || s == StateStopped
}

// AllStates lists every state in declaration order.
func AllStates() []State {
	return []State{
		StateUnregistered,
		StateRegistering,
		StateRegistered,
		StateLost,
		StateStopped,
		StateShuttingDown,
	}
}
