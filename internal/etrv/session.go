package etrv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Audit actions emitted through EventRecorder.
const (
	ActionCommandAccepted = "command_accepted"
	ActionCommandRejected = "command_rejected"
	ActionWriteConfirmed  = "write_confirmed"
	ActionApplianceError  = "appliance_error"
)

// Event is an operator-relevant occurrence in the session.
type Event struct {
	Action  string
	Role    string
	Value   string
	Source  string
	Details string
}

// EventRecorder persists session events. Optional.
type EventRecorder interface {
	Record(ctx context.Context, ev Event) error
}

// Default session timing.
const (
	DefaultHeartbeat      = 60 * time.Second
	DefaultPollInterval   = 60 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// ErrSessionStopped is returned by calls made after Run has returned.
var ErrSessionStopped = errors.New("etrv: session stopped")

// SessionOptions configures a Session.
type SessionOptions struct {
	// Registry maps roles to appliance datapoints. Required.
	Registry *Registry

	// DeviceID is the appliance device identifier used for batch fetches.
	DeviceID string

	// APIPath overrides DefaultAPIPath.
	APIPath string

	// Transport reaches the appliance. Required.
	Transport Transport

	// Display receives display updates. Defaults to an empty Display.
	Display *Display

	// Reconciler carries the battery messages.
	Reconciler Reconciler

	// Heartbeat is the tick granularity. Default: 60s.
	Heartbeat time.Duration

	// PollInterval is the fetch period, derived from heartbeats. Default: 60s.
	PollInterval time.Duration

	// RequestTimeout bounds one connect and round trip. Default: 30s.
	RequestTimeout time.Duration

	// Recorder receives audit events. Optional.
	Recorder EventRecorder

	// Logger defaults to a no-op logger.
	Logger Logger
}

// Stats counts session activity for health reporting.
type Stats struct {
	Fetches     uint64    `json:"fetches"`
	Writes      uint64    `json:"writes"`
	Errors      uint64    `json:"errors"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitzero"`
}

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	DeviceID   string                   `json:"device_id"`
	State      DeviceState              `json:"state"`
	Battery    string                   `json:"battery"`
	Connection string                   `json:"connection"`
	Task       string                   `json:"task"`
	Display    map[string]DisplayUpdate `json:"display"`
	Stats      Stats                    `json:"stats"`
}

// Session owns the engine for one valve. All state is confined to the
// goroutine running Run; other goroutines talk to it through events.
type Session struct {
	reg        *Registry
	deviceID   string
	transport  Transport
	display    *Display
	reconciler Reconciler
	recorder   EventRecorder
	logger     Logger

	heartbeat      time.Duration
	requestTimeout time.Duration

	ctrl  *Controller
	sched *Scheduler
	gw    *Gateway
	state DeviceState
	stats Stats

	events  chan func()
	done    chan struct{}
	runCtx  context.Context
	running sync.Once
}

// NewSession validates opts and builds a session ready to Run.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Registry == nil {
		return nil, errors.New("etrv: registry is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("etrv: transport is required")
	}
	if opts.DeviceID == "" {
		return nil, errors.New("etrv: device id is required")
	}

	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	display := opts.Display
	if display == nil {
		display = NewDisplay()
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	ctrl := NewController(opts.Registry, opts.DeviceID, opts.APIPath)
	clock := NewHeartbeatClock(seconds(heartbeat), seconds(poll))

	return &Session{
		reg:            opts.Registry,
		deviceID:       opts.DeviceID,
		transport:      opts.Transport,
		display:        display,
		reconciler:     opts.Reconciler,
		recorder:       opts.Recorder,
		logger:         logger,
		heartbeat:      heartbeat,
		requestTimeout: timeout,
		ctrl:           ctrl,
		sched:          NewScheduler(clock, ctrl),
		gw:             NewGateway(ctrl),
		events:         make(chan func()),
		done:           make(chan struct{}),
		runCtx:         context.Background(),
	}, nil
}

func seconds(d time.Duration) uint64 {
	s := uint64(d / time.Second)
	if s == 0 {
		s = 1
	}
	return s
}

// Display returns the session's display.
func (s *Session) Display() *Display {
	return s.display
}

// Run processes heartbeats, commands and I/O completions until ctx is
// cancelled. It must be called once.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.running.Do(func() { started = true })
	if !started {
		return errors.New("etrv: session already running")
	}
	defer close(s.done)

	s.runCtx = ctx

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	s.logger.Info("etrv session started",
		"device_id", s.deviceID,
		"datapoints", s.reg.Level(),
		"heartbeat", s.heartbeat.String(),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("etrv session stopped", "device_id", s.deviceID)
			return ctx.Err()
		case <-ticker.C:
			s.onTick()
		case ev := <-s.events:
			ev()
		}
	}
}

// do runs fn on the event loop and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}

	select {
	case s.events <- wrapped:
	case <-s.done:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrSessionStopped
	}
}

// post queues fn from an I/O goroutine. It returns false when the session
// has stopped.
func (s *Session) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Tick delivers one heartbeat outside the internal ticker.
func (s *Session) Tick(ctx context.Context) error {
	return s.do(ctx, s.onTick)
}

// Refresh arms a FetchAll immediately. It fails with ErrBusy while a task
// is in flight.
func (s *Session) Refresh(ctx context.Context) error {
	var err error
	if doErr := s.do(ctx, func() {
		var gen uint64
		gen, err = s.ctrl.Request(FetchAll{})
		if err == nil {
			s.startConnect(gen)
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// SetSetpoint commands a new target temperature. It fails with ErrBusy
// while a task is in flight.
func (s *Session) SetSetpoint(ctx context.Context, value float64, source string) error {
	var err error
	if doErr := s.do(ctx, func() {
		var gen uint64
		gen, err = s.gw.OnSetpointCommand(value)
		s.afterCommand(RoleSetpoint, strconv.FormatFloat(value, 'f', -1, 64), source, gen, err)
	}); doErr != nil {
		return doErr
	}
	return err
}

// SetProfileLevel commands a profile by selector level (10, 20, 30).
// Levels <= 0 fail with ErrInvalidProfileLevel and arm nothing.
func (s *Session) SetProfileLevel(ctx context.Context, level float64, source string) error {
	var err error
	if doErr := s.do(ctx, func() {
		var gen uint64
		gen, err = s.gw.OnProfileCommand(level)
		s.afterCommand(RoleProfile, strconv.FormatFloat(level, 'f', -1, 64), source, gen, err)
	}); doErr != nil {
		return doErr
	}
	return err
}

// SeedDisplay records a value the host already shows for role, such as a
// persisted setpoint, without forwarding it to the sinks.
func (s *Session) SeedDisplay(ctx context.Context, role Role, sValue string) error {
	return s.do(ctx, func() {
		s.display.Seed(role, sValue)
	})
}

// Snapshot returns the current state through the event loop.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() {
		snap = Snapshot{
			DeviceID:   s.deviceID,
			State:      s.state,
			Battery:    s.state.LowBattery.String(),
			Connection: s.ctrl.State().String(),
			Task:       s.ctrl.Task().String(),
			Display:    s.display.Snapshot(),
			Stats:      s.stats,
		}
	})
	return snap, err
}

func (s *Session) afterCommand(role Role, value, source string, gen uint64, err error) {
	if err != nil {
		s.logger.Warn("command rejected",
			"role", role.String(),
			"value", value,
			"source", source,
			"error", err,
		)
		s.record(Event{Action: ActionCommandRejected, Role: role.String(), Value: value, Source: source, Details: err.Error()})
		return
	}

	s.logger.Info("command accepted",
		"role", role.String(),
		"value", value,
		"source", source,
		"task", s.ctrl.Task().String(),
	)
	s.record(Event{Action: ActionCommandAccepted, Role: role.String(), Value: value, Source: source, Details: s.ctrl.Task().String()})
	s.startConnect(gen)
}

func (s *Session) onTick() {
	result, gen, err := s.sched.OnTick()
	switch {
	case err != nil:
		s.logger.Error("poll not armed", "error", err)
	case result == TickSkipped:
		s.logger.Debug("poll skipped, task in flight", "task", s.ctrl.Task().String())
	case result == TickArmed:
		s.logger.Debug("poll armed", "generation", gen)
		s.startConnect(gen)
	}
}

// startConnect dials the appliance in the background for generation gen.
func (s *Session) startConnect(gen uint64) {
	ctx, cancel := context.WithTimeout(s.runCtx, s.requestTimeout)

	go func() {
		conn, err := s.transport.Connect(ctx)
		posted := s.post(func() {
			s.onConnect(ctx, cancel, gen, conn, err)
		})
		if !posted {
			if conn != nil {
				_ = conn.Close()
			}
			cancel()
		}
	}()
}

func (s *Session) onConnect(ctx context.Context, cancel context.CancelFunc, gen uint64, conn Conn, connErr error) {
	path, err := s.ctrl.HandleConnect(gen, connErr)
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		cancel()
		if !errors.Is(err, ErrStale) {
			s.fail(err)
		}
		return
	}

	s.logger.Debug("appliance request", "path", path, "generation", gen)

	go func() {
		defer cancel()
		resp, err := conn.Get(ctx, path)
		_ = conn.Close()
		s.post(func() {
			s.onResponse(gen, resp, err)
		})
	}()
}

func (s *Session) onResponse(gen uint64, resp Response, respErr error) {
	task, err := s.ctrl.HandleResponse(gen, respErr)
	if errors.Is(err, ErrStale) {
		return
	}
	if err != nil {
		s.fail(err)
		return
	}

	switch t := task.(type) {
	case FetchAll:
		s.applyFetch(resp)
	case WriteSetpoint:
		s.applyWrite(resp, t, func() DisplayUpdate {
			var u DisplayUpdate
			s.state, u = s.reconciler.ConfirmSetpoint(t.Value, s.state)
			return u
		})
	case WriteProfile:
		s.applyWrite(resp, t, func() DisplayUpdate {
			var u DisplayUpdate
			s.state, u = s.reconciler.ConfirmProfile(t.Profile, s.state)
			return u
		})
	}
}

func (s *Session) applyFetch(resp Response) {
	decoded, err := Decode(resp.Status, resp.Body, s.reg)
	if err != nil {
		s.fail(fmt.Errorf("decoding state: %w", err))
		return
	}

	next, changes, fieldErrs := s.reconciler.Reconcile(decoded, s.state, s.display)
	s.state = next

	for _, u := range changes {
		s.logger.Debug("display update", "role", u.Role.String(), "value", u.SValue)
		s.display.Update(u)
	}
	for _, fe := range fieldErrs {
		s.logger.Warn("datapoint skipped", "error", fe)
	}

	s.stats.Fetches++
	s.stats.LastSuccess = time.Now().UTC()
}

func (s *Session) applyWrite(resp Response, task Task, confirm func() DisplayUpdate) {
	if resp.Status != 200 {
		s.fail(fmt.Errorf("%s: %w", task, &HTTPStatusError{Code: resp.Status}))
		return
	}

	u := confirm()
	s.display.Update(u)

	s.stats.Writes++
	s.stats.LastSuccess = time.Now().UTC()

	s.logger.Info("write confirmed", "task", task.String())
	s.record(Event{Action: ActionWriteConfirmed, Role: u.Role.String(), Value: u.SValue, Details: task.String()})
}

// fail reports an appliance fault. The next heartbeat or command retries.
func (s *Session) fail(err error) {
	s.stats.Errors++
	s.stats.LastError = err.Error()
	s.stats.LastErrorAt = time.Now().UTC()

	s.logger.Error("appliance cycle failed", "error", err, "state", s.ctrl.State().String())
	s.record(Event{Action: ActionApplianceError, Details: err.Error()})
}

func (s *Session) record(ev Event) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(s.runCtx, ev); err != nil {
		s.logger.Warn("recording event failed", "action", ev.Action, "error", err)
	}
}
