package etrv

import (
	"errors"
	"testing"
)

// fakeDisplay is a DisplayReader backed by a map.
type fakeDisplay map[Role]string

func (f fakeDisplay) Value(role Role) (string, bool) {
	v, ok := f[role]
	return v, ok
}

func decodeNodes(t *testing.T, nodes string) Decoded {
	t.Helper()
	d, err := Decode(200, statePayload(nodes), testRegistry(t))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	return d
}

func findUpdate(updates []DisplayUpdate, role Role) (DisplayUpdate, bool) {
	for _, u := range updates {
		if u.Role == role {
			return u, true
		}
	}
	return DisplayUpdate{}, false
}

func TestReconcileFirstSnapshot(t *testing.T) {
	r := &Reconciler{}
	d := decodeNodes(t, fullDatapoints)

	state, updates, errs := r.Reconcile(d, DeviceState{}, fakeDisplay{})
	if len(errs) != 0 {
		t.Fatalf("Reconcile() errors: %v", errs)
	}

	want := map[Role]DisplayUpdate{
		RoleSetpoint:    {Role: RoleSetpoint, NValue: 1, SValue: "21.5"},
		RoleTemperature: {Role: RoleTemperature, NValue: 0, SValue: "21.0"},
		RoleLowBattery:  {Role: RoleLowBattery, NValue: 1, SValue: "OK", Severity: SeverityInfo},
		RoleValveLevel:  {Role: RoleValveLevel, NValue: 0, SValue: "37"},
		RoleProfile:     {Role: RoleProfile, NValue: 2, SValue: "20"},
	}
	if len(updates) != len(want) {
		t.Fatalf("got %d updates, want %d: %+v", len(updates), len(want), updates)
	}
	for role, w := range want {
		got, ok := findUpdate(updates, role)
		if !ok {
			t.Errorf("missing update for %s", role)
			continue
		}
		if got.NValue != w.NValue || got.SValue != w.SValue || got.Severity != w.Severity {
			t.Errorf("%s update = %+v, want %+v", role, got, w)
		}
	}

	if state.Temperature != 21.0 || state.Setpoint != 21.5 || state.ActiveProfile != 2 || state.LowBattery != BatteryOK {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	r := &Reconciler{}
	d := decodeNodes(t, fullDatapoints)
	display := fakeDisplay{}

	state, updates, _ := r.Reconcile(d, DeviceState{}, display)
	for _, u := range updates {
		display[u.Role] = u.SValue
	}

	again, updates, errs := r.Reconcile(d, state, display)
	if len(errs) != 0 {
		t.Fatalf("second Reconcile() errors: %v", errs)
	}
	if len(updates) != 0 {
		t.Errorf("second Reconcile() produced updates: %+v", updates)
	}
	if again != state {
		t.Errorf("state changed on second pass: %+v -> %+v", state, again)
	}
}

func TestReconcileBatteryTriState(t *testing.T) {
	r := &Reconciler{BatteryOKMessage: "OK", BatteryLowMessage: "Niedrig"}
	ok := decodeNodes(t, `<datapoint ise_id="1549" value="false"/>`)
	low := decodeNodes(t, `<datapoint ise_id="1549" value="true"/>`)

	state := DeviceState{}
	if state.LowBattery != BatteryUnknown {
		t.Fatalf("initial battery = %v, want unknown", state.LowBattery)
	}

	total := 0
	steps := []struct {
		d        Decoded
		wantFire bool
		want     Battery
	}{
		{ok, true, BatteryOK},
		{ok, false, BatteryOK},
		{low, true, BatteryLow},
		{low, false, BatteryLow},
		{ok, true, BatteryOK},
	}
	for i, step := range steps {
		var updates []DisplayUpdate
		state, updates, _ = r.Reconcile(step.d, state, nil)
		u, fired := findUpdate(updates, RoleLowBattery)
		if fired != step.wantFire {
			t.Errorf("step %d: fired = %v, want %v", i, fired, step.wantFire)
		}
		if fired {
			total++
			if step.want == BatteryLow && (u.NValue != 4 || u.SValue != "Niedrig" || u.Severity != SeverityWarning) {
				t.Errorf("step %d: low update = %+v", i, u)
			}
			if step.want == BatteryOK && (u.NValue != 1 || u.SValue != "OK" || u.Severity != SeverityInfo) {
				t.Errorf("step %d: ok update = %+v", i, u)
			}
		}
		if state.LowBattery != step.want {
			t.Errorf("step %d: battery = %v, want %v", i, state.LowBattery, step.want)
		}
	}
	if total != 3 {
		t.Errorf("battery fired %d times, want 3", total)
	}
}

func TestReconcileSetpoint(t *testing.T) {
	d := decodeNodes(t, `<datapoint ise_id="1584" value="21.500000"/>`)

	tests := []struct {
		name       string
		display    fakeDisplay
		wantUpdate bool
		wantErr    error
		wantState  float64
	}{
		{"seeded when display empty", fakeDisplay{}, true, nil, 21.5},
		{"seeded when display blank", fakeDisplay{RoleSetpoint: ""}, true, nil, 21.5},
		{"unchanged when equal", fakeDisplay{RoleSetpoint: "21.5"}, false, nil, 21.5},
		{"appliance wins on drift", fakeDisplay{RoleSetpoint: "19.0"}, true, nil, 21.5},
		{"display not numeric", fakeDisplay{RoleSetpoint: "abc"}, false, ErrNotNumeric, 18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Reconciler{}
			state, updates, errs := r.Reconcile(d, DeviceState{Setpoint: 18}, tt.display)

			u, fired := findUpdate(updates, RoleSetpoint)
			if fired != tt.wantUpdate {
				t.Errorf("update fired = %v, want %v", fired, tt.wantUpdate)
			}
			if fired && (u.SValue != "21.5" || u.NValue != 1) {
				t.Errorf("update = %+v", u)
			}
			if tt.wantErr != nil {
				if len(errs) != 1 || !errors.Is(errs[0], tt.wantErr) {
					t.Errorf("errors = %v, want %v", errs, tt.wantErr)
				}
			} else if len(errs) != 0 {
				t.Errorf("unexpected errors %v", errs)
			}
			if state.Setpoint != tt.wantState {
				t.Errorf("state.Setpoint = %v, want %v", state.Setpoint, tt.wantState)
			}
		})
	}
}

func TestReconcileDisplayFormatting(t *testing.T) {
	tests := []struct {
		name  string
		node  string
		role  Role
		want  string
		value float64
	}{
		{"temperature integral", `<datapoint ise_id="1567" value="21.000000"/>`, RoleTemperature, "21.0", 21},
		{"temperature rounded to 2dp", `<datapoint ise_id="1567" value="21.456000"/>`, RoleTemperature, "21.46", 21.456},
		{"valve 0.37", `<datapoint ise_id="1576" value="0.370000"/>`, RoleValveLevel, "37", 37},
		{"valve nearly closed", `<datapoint ise_id="1576" value="0.004"/>`, RoleValveLevel, "0", 0.4},
		{"profile 1", `<datapoint ise_id="1566" value="1"/>`, RoleProfile, "10", 1},
		{"profile 3", `<datapoint ise_id="1566" value="3"/>`, RoleProfile, "30", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Reconciler{}
			state, updates, _ := r.Reconcile(decodeNodes(t, tt.node), DeviceState{}, nil)
			u, ok := findUpdate(updates, tt.role)
			if !ok {
				t.Fatalf("no update for %s", tt.role)
			}
			if u.SValue != tt.want {
				t.Errorf("SValue = %q, want %q", u.SValue, tt.want)
			}
			if tt.role == RoleTemperature && state.Temperature != tt.value {
				t.Errorf("cached temperature = %v, want unrounded %v", state.Temperature, tt.value)
			}
		})
	}
}

func TestReconcileAbsentFieldsUntouched(t *testing.T) {
	r := &Reconciler{}
	prev := DeviceState{
		Setpoint:      19.5,
		Temperature:   18.25,
		LowBattery:    BatteryLow,
		ValveLevel:    42,
		ActiveProfile: 3,
	}

	d := decodeNodes(t, `<datapoint ise_id="1567" value="21.000000"/>`)
	state, updates, errs := r.Reconcile(d, prev, fakeDisplay{RoleSetpoint: "19.5"})
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}

	if len(updates) != 1 || updates[0].Role != RoleTemperature || updates[0].SValue != "21.0" {
		t.Errorf("updates = %+v, want only temperature 21.0", updates)
	}

	want := prev
	want.Temperature = 21.0
	if state != want {
		t.Errorf("state = %+v, want %+v", state, want)
	}
}

func TestReconcileFieldErrorIsolated(t *testing.T) {
	r := &Reconciler{}
	d := decodeNodes(t, `<datapoint ise_id="1567" value="bad"/><datapoint ise_id="1576" value="0.5"/>`)

	state, updates, errs := r.Reconcile(d, DeviceState{Temperature: 20}, nil)
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want one", errs)
	}
	if state.Temperature != 20 {
		t.Errorf("temperature = %v, want unchanged 20", state.Temperature)
	}
	if u, ok := findUpdate(updates, RoleValveLevel); !ok || u.SValue != "50" {
		t.Errorf("valve update = %+v, %v", u, ok)
	}
}

func TestConfirmWrites(t *testing.T) {
	r := &Reconciler{}

	state, u := r.ConfirmSetpoint(22.5, DeviceState{Setpoint: 18})
	if state.Setpoint != 22.5 {
		t.Errorf("Setpoint = %v, want 22.5", state.Setpoint)
	}
	if u.Role != RoleSetpoint || u.SValue != "22.5" || u.NValue != 1 {
		t.Errorf("setpoint update = %+v", u)
	}

	state, u = r.ConfirmProfile(2, state)
	if state.ActiveProfile != 2 || state.Setpoint != 22.5 {
		t.Errorf("state = %+v", state)
	}
	if u.Role != RoleProfile || u.SValue != "20" || u.NValue != 2 {
		t.Errorf("profile update = %+v", u)
	}
}

func TestFormatDecimal(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{21, "21.0"},
		{21.5, "21.5"},
		{-3, "-3.0"},
		{18.25, "18.25"},
	}
	for _, tt := range tests {
		if got := formatDecimal(tt.in); got != tt.want {
			t.Errorf("formatDecimal(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
