package etrv

import (
	"sync"
)

// DisplaySink receives every display update, for example an MQTT publisher
// or a telemetry writer.
type DisplaySink interface {
	Show(update DisplayUpdate) error
}

// DisplaySinkFunc adapts a function to DisplaySink.
type DisplaySinkFunc func(update DisplayUpdate) error

// Show calls f(update).
func (f DisplaySinkFunc) Show(update DisplayUpdate) error {
	return f(update)
}

// Display holds the last value shown on each display surface and forwards
// updates to its sinks. It is safe for concurrent use.
type Display struct {
	mu     sync.RWMutex
	values map[Role]DisplayUpdate
	sinks  []DisplaySink

	logger Logger
}

// NewDisplay creates an empty display forwarding to sinks.
func NewDisplay(sinks ...DisplaySink) *Display {
	return &Display{
		values: make(map[Role]DisplayUpdate),
		sinks:  sinks,
		logger: nopLogger{},
	}
}

// AddSink registers another sink. Must be called before updates start.
func (d *Display) AddSink(sink DisplaySink) {
	d.mu.Lock()
	d.sinks = append(d.sinks, sink)
	d.mu.Unlock()
}

// SetLogger sets the logger used for sink failures.
func (d *Display) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// Update records u and forwards it to every sink. A failing sink is logged
// and does not stop the others.
func (d *Display) Update(u DisplayUpdate) {
	d.mu.Lock()
	d.values[u.Role] = u
	sinks := d.sinks
	logger := d.logger
	d.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Show(u); err != nil {
			logger.Warn("display sink failed", "role", u.Role.String(), "error", err)
		}
	}
}

// Seed records a value already held by the host without forwarding it.
func (d *Display) Seed(role Role, sValue string) {
	d.mu.Lock()
	d.values[role] = DisplayUpdate{Role: role, SValue: sValue}
	d.mu.Unlock()
}

// Value returns the string value last shown for role.
func (d *Display) Value(role Role) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.values[role]
	if !ok {
		return "", false
	}
	return u.SValue, true
}

// Snapshot returns a copy of every display surface keyed by role name.
func (d *Display) Snapshot() map[string]DisplayUpdate {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]DisplayUpdate, len(d.values))
	for role, u := range d.values {
		out[role.String()] = u
	}
	return out
}
