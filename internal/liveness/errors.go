package liveness

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/randomizedcoder/go-tash-host/internal/monitor"
)

// Sentinels for errors.Is. Each typed error below matches its sentinel.
var (
	ErrConnectivity         = errors.New("monitor unreachable")
	ErrRegistrationRejected = errors.New("registration rejected")
	ErrConfirmationProtocol = errors.New("confirmation protocol failure")
	ErrRosterDesync         = errors.New("process missing from roster")
)

// ConnectivityError means the monitor could not be reached at startup.
type ConnectivityError struct {
	Messages []string
	Err      error
}

func newConnectivityError(err error) *ConnectivityError {
	ce := &ConnectivityError{Err: err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			ce.Messages = append(ce.Messages, e.Error())
		}
	} else if err != nil {
		ce.Messages = []string{err.Error()}
	}
	return ce
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("could not connect to monitor: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// RegistrationRejectedError means Register did not answer 201 Created.
// StatusCode is 0 when no response was received.
type RegistrationRejectedError struct {
	StatusCode int
	Err        error
}

func (e *RegistrationRejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not make registration: %v", e.Err)
	}
	return "could not make registration: " + statusText(e.StatusCode)
}

func (e *RegistrationRejectedError) Unwrap() error { return e.Err }

func (e *RegistrationRejectedError) Is(target error) bool { return target == ErrRegistrationRejected }

// ConfirmationProtocolError means a confirmation round failed. Reporting
// stops; the host process keeps running.
type ConfirmationProtocolError struct {
	StatusCode int
	Err        error
}

func (e *ConfirmationProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not confirm status (%s): %v", statusText(e.StatusCode), e.Err)
	}
	return "could not confirm status: " + statusText(e.StatusCode)
}

func (e *ConfirmationProtocolError) Unwrap() error { return e.Err }

func (e *ConfirmationProtocolError) Is(target error) bool { return target == ErrConfirmationProtocol }

// RosterDesyncError is a warning: the monitor accepted a confirmation but
// its roster no longer lists the process.
type RosterDesyncError struct {
	Identity monitor.ProcessIdentity
}

func (e *RosterDesyncError) Error() string {
	return fmt.Sprintf("process %s is no longer among the monitor's processes", e.Identity)
}

func (e *RosterDesyncError) Is(target error) bool { return target == ErrRosterDesync }

// statusText renders a status code the way it is shown to the user.
func statusText(code int) string {
	if code == 0 {
		return "no response"
	}
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("%d %s", code, text)
	}
	return fmt.Sprintf("HTTP %d", code)
}
