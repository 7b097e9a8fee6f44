package etrv

import (
	"errors"
	"fmt"
)

// Domain errors for the eTRV engine.
var (
	// ErrInsufficientDatapoints is returned when the configured datapoint
	// list is shorter than the feature level requires.
	ErrInsufficientDatapoints = errors.New("etrv: insufficient datapoints")

	// ErrInvalidFeatureLevel is returned for a feature level outside 3-5.
	ErrInvalidFeatureLevel = errors.New("etrv: invalid feature level")

	// ErrInvalidDatapoint is returned for an empty datapoint identifier.
	ErrInvalidDatapoint = errors.New("etrv: invalid datapoint identifier")

	// ErrMalformed is returned when the appliance payload is not a
	// well-formed XML document.
	ErrMalformed = errors.New("etrv: malformed appliance response")

	// ErrNotNumeric is returned when a value that must be a number is not.
	ErrNotNumeric = errors.New("etrv: value is not numeric")

	// ErrInvalidValue is returned when a datapoint value has the wrong shape.
	ErrInvalidValue = errors.New("etrv: invalid datapoint value")

	// ErrBusy is returned when a task is requested while another is in flight.
	ErrBusy = errors.New("etrv: task already in flight")

	// ErrConnectFailed is returned when the appliance cannot be reached.
	ErrConnectFailed = errors.New("etrv: connection to appliance failed")

	// ErrTransport is returned when the request fails after connecting.
	ErrTransport = errors.New("etrv: appliance transport failed")

	// ErrStale is returned for a completion that belongs to a task the
	// controller no longer tracks.
	ErrStale = errors.New("etrv: stale task completion")

	// ErrInvalidProfileLevel is returned for a level that selects no profile 1-3.
	ErrInvalidProfileLevel = errors.New("etrv: profile level must select profile 1-3")

	// ErrInvalidSetpoint is returned for a setpoint that is not finite.
	ErrInvalidSetpoint = errors.New("etrv: setpoint must be a finite number")

	// ErrRoleNotTracked is returned when a role is outside the feature level.
	ErrRoleNotTracked = errors.New("etrv: role not tracked")
)

// HTTPStatusError reports a non-200 status from the appliance.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("etrv: appliance returned HTTP %d", e.Code)
}

// FieldError reports a value for a single role that could not be used.
// The rest of the cycle still proceeds.
type FieldError struct {
	Role  Role
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("etrv: %s value %q: %v", e.Role, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
