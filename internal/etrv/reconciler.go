package etrv

import (
	"math"
	"strconv"
	"strings"
)

// Battery is the tri-state low battery indicator.
type Battery int

const (
	// BatteryUnknown is the state before the first observation.
	BatteryUnknown Battery = iota
	BatteryOK
	BatteryLow
)

func (b Battery) String() string {
	switch b {
	case BatteryOK:
		return "ok"
	case BatteryLow:
		return "low"
	default:
		return "unknown"
	}
}

// DeviceState is the locally held model of the valve.
type DeviceState struct {
	Setpoint      float64 `json:"setpoint"`
	Temperature   float64 `json:"temperature"`
	LowBattery    Battery `json:"-"`
	ValveLevel    float64 `json:"valve_level"`
	ActiveProfile int     `json:"active_profile"`
}

// Severity classifies a display update for the operator.
type Severity string

const (
	SeverityNone    Severity = ""
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Display nValue codes. They follow the host widget conventions: 1 marks a
// thermostat setpoint or a good battery, 2 an active selector level and
// 4 a battery alert.
const (
	nValueNone      = 0
	nValueSetpoint  = 1
	nValueBatteryOK = 1
	nValueActive    = 2
	nValueAlert     = 4
)

// DisplayUpdate is one value pushed to a host display surface.
type DisplayUpdate struct {
	Role     Role     `json:"role"`
	NValue   int      `json:"n_value"`
	SValue   string   `json:"s_value"`
	Severity Severity `json:"severity,omitempty"`

	// Value is the numeric value behind SValue. For the battery it is 1
	// when low and 0 otherwise.
	Value float64 `json:"value"`
}

// DisplayReader exposes the last value shown on each display surface.
type DisplayReader interface {
	Value(role Role) (string, bool)
}

// Default battery messages.
const (
	DefaultBatteryOKMessage  = "OK"
	DefaultBatteryLowMessage = "Low"
)

// Reconciler turns decoded datapoints into state changes and display updates.
type Reconciler struct {
	BatteryOKMessage  string
	BatteryLowMessage string
}

// Reconcile applies d to prev and returns the new state together with the
// display updates for every field that changed. Fields that are absent or
// failed to decode keep their previous value; their errors are returned
// alongside.
func (r *Reconciler) Reconcile(d Decoded, prev DeviceState, display DisplayReader) (DeviceState, []DisplayUpdate, []error) {
	next := prev
	var changes []DisplayUpdate
	errs := d.Errors()

	if f := d.Field(RoleTemperature); f.Usable() && f.Number != prev.Temperature {
		next.Temperature = f.Number
		changes = append(changes, DisplayUpdate{
			Role:   RoleTemperature,
			NValue: nValueNone,
			SValue: formatDecimal(roundTo(f.Number, 2)),
			Value:  f.Number,
		})
	}

	if f := d.Field(RoleLowBattery); f.Usable() {
		state := BatteryOK
		if f.Low {
			state = BatteryLow
		}
		if state != prev.LowBattery {
			next.LowBattery = state
			changes = append(changes, r.BatteryUpdate(state))
		}
	}

	if f := d.Field(RoleSetpoint); f.Usable() {
		update, err := r.reconcileSetpoint(f, display)
		switch {
		case err != nil:
			errs = append(errs, err)
		case update != nil:
			next.Setpoint = f.Number
			changes = append(changes, *update)
		default:
			next.Setpoint = f.Number
		}
	}

	if f := d.Field(RoleValveLevel); f.Usable() && f.Number != prev.ValveLevel {
		next.ValveLevel = f.Number
		changes = append(changes, DisplayUpdate{
			Role:   RoleValveLevel,
			NValue: nValueNone,
			SValue: strconv.Itoa(int(math.Round(f.Number))),
			Value:  f.Number,
		})
	}

	if f := d.Field(RoleProfile); f.Usable() {
		p := int(f.Number)
		if p != prev.ActiveProfile {
			next.ActiveProfile = p
			changes = append(changes, profileUpdate(p))
		}
	}

	return next, changes, errs
}

// reconcileSetpoint compares the appliance setpoint with the value last
// shown on the display. The appliance wins on any difference.
func (r *Reconciler) reconcileSetpoint(f Field, display DisplayReader) (*DisplayUpdate, error) {
	update := setpointUpdate(f.Number)

	shown, ok := "", false
	if display != nil {
		shown, ok = display.Value(RoleSetpoint)
	}
	if !ok || strings.TrimSpace(shown) == "" {
		return &update, nil
	}

	current, err := strconv.ParseFloat(strings.TrimSpace(shown), 64)
	if err != nil {
		return nil, &FieldError{Role: RoleSetpoint, Value: shown, Err: ErrNotNumeric}
	}
	if current == f.Number {
		return nil, nil
	}
	return &update, nil
}

// ConfirmSetpoint mirrors a completed setpoint write into state.
func (r *Reconciler) ConfirmSetpoint(v float64, prev DeviceState) (DeviceState, DisplayUpdate) {
	prev.Setpoint = v
	return prev, setpointUpdate(v)
}

// ConfirmProfile mirrors a completed profile write into state.
func (r *Reconciler) ConfirmProfile(p int, prev DeviceState) (DeviceState, DisplayUpdate) {
	prev.ActiveProfile = p
	return prev, profileUpdate(p)
}

// BatteryUpdate returns the display update for a battery state.
func (r *Reconciler) BatteryUpdate(state Battery) DisplayUpdate {
	if state == BatteryLow {
		msg := r.BatteryLowMessage
		if msg == "" {
			msg = DefaultBatteryLowMessage
		}
		return DisplayUpdate{Role: RoleLowBattery, NValue: nValueAlert, SValue: msg, Severity: SeverityWarning, Value: 1}
	}

	msg := r.BatteryOKMessage
	if msg == "" {
		msg = DefaultBatteryOKMessage
	}
	return DisplayUpdate{Role: RoleLowBattery, NValue: nValueBatteryOK, SValue: msg, Severity: SeverityInfo, Value: 0}
}

func setpointUpdate(v float64) DisplayUpdate {
	return DisplayUpdate{Role: RoleSetpoint, NValue: nValueSetpoint, SValue: formatDecimal(v), Value: v}
}

func profileUpdate(p int) DisplayUpdate {
	return DisplayUpdate{Role: RoleProfile, NValue: nValueActive, SValue: strconv.Itoa(p * 10), Value: float64(p)}
}

// formatDecimal renders v with at least one decimal place (21 -> "21.0").
func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
