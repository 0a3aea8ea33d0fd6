// Package monitor talks to the Tash monitor: the service that keeps the
// roster of controllable processes and tracks their liveness.
package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProcessIdentity identifies a supervised process. It is the platform
// process id and never changes for the lifetime of the process.
type ProcessIdentity int

// String returns the decimal pid.
func (id ProcessIdentity) String() string {
	return strconv.Itoa(int(id))
}

// ProcessStatus is the status reported to the monitor.
type ProcessStatus int

const (
	// StatusIdle means the process is alive and waiting for work.
	StatusIdle ProcessStatus = iota

	// StatusBusy means the process is alive and working.
	StatusBusy

	// StatusDead means the process is going away.
	StatusDead
)

// String returns the wire name of the status.
func (s ProcessStatus) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusBusy:
		return "Busy"
	case StatusDead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the status by name.
func (s ProcessStatus) MarshalText() ([]byte, error) {
	if s < StatusIdle || s > StatusDead {
		return nil, fmt.Errorf("invalid process status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name, case-insensitively.
func (s *ProcessStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "idle":
		*s = StatusIdle
	case "busy":
		*s = StatusBusy
	case "dead":
		*s = StatusDead
	default:
		return fmt.Errorf("unknown process status %q", string(text))
	}
	return nil
}

// Registration describes this process to the monitor.
type Registration struct {
	ProcessID     ProcessIdentity
	Title         string
	LaunchCommand string
	InstanceID    uuid.UUID // tells pid reuse apart
}

// ControllableProcess is one entry of the monitor's roster.
type ControllableProcess struct {
	ProcessID     ProcessIdentity `json:"ProcessId"`
	Title         string          `json:"Title,omitempty"`
	Status        ProcessStatus   `json:"Status"`
	ConfirmedAt   time.Time       `json:"ConfirmedAt,omitzero"`
	LaunchCommand string          `json:"LaunchCommand,omitempty"`
	InstanceID    string          `json:"InstanceId,omitempty"`
}

// Client is the network boundary to the monitor. Status-returning calls
// report the HTTP status code; a non-nil error means no response was
// obtained at all.
type Client interface {
	// EnsureRunning verifies the monitor is reachable. A failure may join
	// several errors, one per problem found.
	EnsureRunning(ctx context.Context) error

	// Register adds this process to the roster. Expects 201 Created.
	Register(ctx context.Context, reg Registration) (int, error)

	// ConfirmAlive reports liveness as of at. Expects 204 No Content.
	ConfirmAlive(ctx context.Context, id ProcessIdentity, at time.Time, status ProcessStatus) (int, error)

	// ListRegistered returns the monitor's current roster.
	ListRegistered(ctx context.Context) ([]ControllableProcess, error)

	// ConfirmDead tells the monitor this process is going away.
	ConfirmDead(ctx context.Context, id ProcessIdentity) error
}

// Contains reports whether the roster lists id.
func Contains(roster []ControllableProcess, id ProcessIdentity) bool {
	for _, p := range roster {
		if p.ProcessID == id {
			return true
		}
	}
	return false
}
