package etrv

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultAPIPath is where the XML-API add-on is mounted on the appliance.
const DefaultAPIPath = "/addons/xmlapi"

// Controller owns the single outbound channel to the appliance. It tracks
// the pending task, the connection state and a generation number that ties
// asynchronous completions to the request that produced them.
type Controller struct {
	reg      *Registry
	deviceID string
	apiPath  string

	state ConnState
	task  Task
	gen   uint64
}

// NewController creates a controller in the Disconnected state.
// An empty apiPath selects DefaultAPIPath.
func NewController(reg *Registry, deviceID, apiPath string) *Controller {
	if apiPath == "" {
		apiPath = DefaultAPIPath
	}
	return &Controller{
		reg:      reg,
		deviceID: deviceID,
		apiPath:  strings.TrimRight(apiPath, "/"),
		state:    StateDisconnected,
		task:     Idle{},
	}
}

// State returns the connection state.
func (c *Controller) State() ConnState {
	return c.state
}

// Task returns the pending task, Idle when nothing is in flight.
func (c *Controller) Task() Task {
	return c.task
}

// Generation returns the generation of the most recent request.
func (c *Controller) Generation() uint64 {
	return c.gen
}

// Request arms task and moves to Connecting. It fails with ErrBusy while
// another task is in flight; the pending task is left untouched.
func (c *Controller) Request(task Task) (uint64, error) {
	if c.state.Busy() {
		return 0, fmt.Errorf("%w: %s pending", ErrBusy, c.task)
	}
	if isIdle(task) {
		return 0, errors.New("etrv: cannot request idle task")
	}
	if _, err := c.buildPath(task); err != nil {
		return 0, err
	}

	c.gen++
	c.task = task
	c.state = StateConnecting
	return c.gen, nil
}

// HandleConnect processes the outcome of a connection attempt. On success it
// returns the request path for the pending task and moves to Awaiting. On
// failure the task is abandoned and the controller returns to Disconnected.
func (c *Controller) HandleConnect(gen uint64, connErr error) (string, error) {
	if gen != c.gen || c.state != StateConnecting {
		return "", ErrStale
	}

	if connErr != nil {
		task := c.task
		c.task = Idle{}
		c.state = StateDisconnected
		return "", fmt.Errorf("%w: %s: %w", ErrConnectFailed, task, connErr)
	}

	path, err := c.buildPath(c.task)
	if err != nil {
		c.task = Idle{}
		c.state = StateDisconnected
		return "", err
	}

	c.state = StateAwaiting
	return path, nil
}

// HandleResponse processes the end of a round trip and returns the task it
// belonged to. The controller always returns to Idle and the pending write is
// cleared, whether or not the round trip succeeded.
func (c *Controller) HandleResponse(gen uint64, respErr error) (Task, error) {
	if gen != c.gen || c.state != StateAwaiting {
		return Idle{}, ErrStale
	}

	task := c.task
	c.task = Idle{}
	c.state = StateIdle

	if respErr != nil {
		return task, fmt.Errorf("%w: %s: %w", ErrTransport, task, respErr)
	}
	return task, nil
}

// buildPath returns the appliance request path for task.
func (c *Controller) buildPath(task Task) (string, error) {
	switch t := task.(type) {
	case FetchAll:
		q := url.Values{}
		q.Set("device_id", c.deviceID)
		return c.apiPath + "/state.cgi?" + q.Encode(), nil

	case WriteSetpoint:
		return c.stateChangePath(RoleSetpoint, formatDecimal(t.Value))

	case WriteProfile:
		return c.stateChangePath(RoleProfile, strconv.Itoa(t.Profile))

	default:
		return "", fmt.Errorf("etrv: no request for task %v", task)
	}
}

func (c *Controller) stateChangePath(role Role, value string) (string, error) {
	id, ok := c.reg.ID(role)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrRoleNotTracked, role)
	}
	q := url.Values{}
	q.Set("ise_id", id)
	q.Set("new_value", value)
	return c.apiPath + "/statechange.cgi?" + q.Encode(), nil
}
