package etrv

import (
	"fmt"
	"math"
)

// Schedule slots the valve accepts.
const (
	MinProfile = 1
	MaxProfile = 3
)

// Gateway turns host commands into write tasks.
type Gateway struct {
	ctrl *Controller
}

// NewGateway creates a gateway arming tasks on ctrl.
func NewGateway(ctrl *Controller) *Gateway {
	return &Gateway{ctrl: ctrl}
}

// OnSetpointCommand arms WriteSetpoint(v).
func (g *Gateway) OnSetpointCommand(v float64) (uint64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidSetpoint
	}
	return g.ctrl.Request(WriteSetpoint{Value: v})
}

// OnProfileCommand arms WriteProfile for a selector level (10, 20, 30).
// Levels <= 0 are the selector's "Off" position and are ignored. Levels that
// do not round to profile 1-3 are rejected.
func (g *Gateway) OnProfileCommand(level float64) (uint64, error) {
	if math.IsNaN(level) || level <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidProfileLevel, level)
	}
	p, ok := ProfileForLevel(level)
	if !ok {
		return 0, fmt.Errorf("%w: %v maps to no profile", ErrInvalidProfileLevel, level)
	}
	return g.ctrl.Request(WriteProfile{Profile: p})
}

// ProfileForLevel converts a selector level to a profile slot, rounding half
// to even (15 -> 2, 25 -> 2). ok is false outside MinProfile..MaxProfile.
func ProfileForLevel(level float64) (profile int, ok bool) {
	r := math.RoundToEven(level / 10)
	if math.IsNaN(r) || r < MinProfile || r > MaxProfile {
		return 0, false
	}
	return int(r), true
}
