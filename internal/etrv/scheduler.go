package etrv

import "errors"

// HeartbeatClock derives the poll period from a fixed heartbeat.
type HeartbeatClock struct {
	Counter         uint64
	IntervalSeconds uint64
	TargetSeconds   uint64
}

// NewHeartbeatClock returns a clock with a zero counter. A zero interval or
// target is treated as one second.
func NewHeartbeatClock(intervalSeconds, targetSeconds uint64) *HeartbeatClock {
	if intervalSeconds == 0 {
		intervalSeconds = 1
	}
	if targetSeconds == 0 {
		targetSeconds = 1
	}
	return &HeartbeatClock{IntervalSeconds: intervalSeconds, TargetSeconds: targetSeconds}
}

// Advance counts one heartbeat and reports whether a poll is due.
func (c *HeartbeatClock) Advance() bool {
	c.Counter++
	return (c.Counter*c.IntervalSeconds)%c.TargetSeconds == 0
}

// Scheduler arms a FetchAll on aligned heartbeats.
type Scheduler struct {
	clock *HeartbeatClock
	ctrl  *Controller
}

// NewScheduler creates a scheduler driving ctrl from clock.
func NewScheduler(clock *HeartbeatClock, ctrl *Controller) *Scheduler {
	return &Scheduler{clock: clock, ctrl: ctrl}
}

// TickResult describes what a heartbeat did.
type TickResult int

const (
	// TickNotDue means the heartbeat did not align with the poll period.
	TickNotDue TickResult = iota
	// TickSkipped means a poll was due but a task was in flight.
	TickSkipped
	// TickArmed means a FetchAll was armed.
	TickArmed
)

// OnTick advances the clock and arms a FetchAll when due. While the
// controller is busy the tick is skipped and nothing is rescheduled.
func (s *Scheduler) OnTick() (TickResult, uint64, error) {
	if !s.clock.Advance() {
		return TickNotDue, 0, nil
	}
	if s.ctrl.State().Busy() {
		return TickSkipped, 0, nil
	}

	gen, err := s.ctrl.Request(FetchAll{})
	if errors.Is(err, ErrBusy) {
		return TickSkipped, 0, nil
	}
	if err != nil {
		return TickSkipped, 0, err
	}
	return TickArmed, gen, nil
}
