package etrv

import (
	"fmt"
	"strconv"
)

// Task is the single operation the Controller is executing.
// It is one of Idle, FetchAll, WriteSetpoint or WriteProfile; callers
// switch on the concrete type.
type Task interface {
	fmt.Stringer
	isTask()
}

// Idle means no task is pending.
type Idle struct{}

// FetchAll reads every tracked datapoint in one batch request.
type FetchAll struct{}

// WriteSetpoint sends a new target temperature to the appliance.
// Value is the pending write, cleared when the round trip completes.
type WriteSetpoint struct {
	Value float64
}

// WriteProfile selects the active schedule profile (1-3).
type WriteProfile struct {
	Profile int
}

func (Idle) isTask()          {}
func (FetchAll) isTask()      {}
func (WriteSetpoint) isTask() {}
func (WriteProfile) isTask()  {}

func (Idle) String() string     { return "idle" }
func (FetchAll) String() string { return "fetch_all" }

func (t WriteSetpoint) String() string {
	return "write_setpoint(" + strconv.FormatFloat(t.Value, 'f', -1, 64) + ")"
}

func (t WriteProfile) String() string {
	return "write_profile(" + strconv.Itoa(t.Profile) + ")"
}

// isIdle reports whether t carries no work. A nil task counts as idle.
func isIdle(t Task) bool {
	if t == nil {
		return true
	}
	_, ok := t.(Idle)
	return ok
}

// ConnState is the state of the Controller's single outbound channel.
type ConnState int

const (
	// StateDisconnected is the initial state and the state after a connect failure.
	StateDisconnected ConnState = iota
	// StateConnecting means a connection has been requested for the pending task.
	StateConnecting
	// StateAwaiting means the request was sent and the response is outstanding.
	StateAwaiting
	// StateIdle means the last round trip completed.
	StateIdle
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaiting:
		return "awaiting"
	case StateIdle:
		return "idle"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Busy reports whether a task is in flight.
func (s ConnState) Busy() bool {
	return s == StateConnecting || s == StateAwaiting
}
