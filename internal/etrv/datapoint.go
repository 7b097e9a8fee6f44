package etrv

import (
	"fmt"
	"strings"
)

// Role is the semantic meaning of a datapoint, independent of the
// identifier the appliance assigned to it.
type Role int

// Roles in the order the datapoint list is configured.
const (
	RoleSetpoint Role = iota
	RoleTemperature
	RoleLowBattery
	RoleValveLevel
	RoleProfile
)

// Feature levels bound how many roles a deployment tracks.
const (
	MinFeatureLevel = 3
	MaxFeatureLevel = 5
)

var roleNames = [...]string{
	RoleSetpoint:    "setpoint",
	RoleTemperature: "temperature",
	RoleLowBattery:  "battery",
	RoleValveLevel:  "valve",
	RoleProfile:     "profile",
}

// AllRoles returns every role in configuration order.
func AllRoles() []Role {
	return []Role{RoleSetpoint, RoleTemperature, RoleLowBattery, RoleValveLevel, RoleProfile}
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// Unit returns the host display unit number for the role (1-5).
func (r Role) Unit() int {
	return int(r) + 1
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts a role name.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// ParseRole converts a role name back to a Role.
func ParseRole(s string) (Role, error) {
	for i, name := range roleNames {
		if strings.EqualFold(name, s) {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("etrv: unknown role %q", s)
}

// Registry maps roles to appliance datapoint identifiers.
// It is immutable after LoadRegistry returns.
type Registry struct {
	ids []string
}

// ParseDatapointList splits a comma separated datapoint list
// ("1584,1567,1549,1576,1566") into its identifiers.
func ParseDatapointList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// LoadRegistry builds a Registry tracking the first level roles.
// Identifiers beyond level are ignored.
func LoadRegistry(raw []string, level int) (*Registry, error) {
	if level < MinFeatureLevel || level > MaxFeatureLevel {
		return nil, fmt.Errorf("%w: %d (must be %d-%d)", ErrInvalidFeatureLevel, level, MinFeatureLevel, MaxFeatureLevel)
	}
	if len(raw) < level {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientDatapoints, len(raw), level)
	}

	ids := make([]string, level)
	for i := 0; i < level; i++ {
		id := strings.TrimSpace(raw[i])
		if id == "" {
			return nil, fmt.Errorf("%w: position %d (%s)", ErrInvalidDatapoint, i, Role(i))
		}
		ids[i] = id
	}

	return &Registry{ids: ids}, nil
}

// Level returns the number of tracked roles.
func (r *Registry) Level() int {
	return len(r.ids)
}

// Tracks reports whether role is within the registry's feature level.
func (r *Registry) Tracks(role Role) bool {
	return role >= 0 && int(role) < len(r.ids)
}

// ID returns the datapoint identifier for role.
func (r *Registry) ID(role Role) (string, bool) {
	if !r.Tracks(role) {
		return "", false
	}
	return r.ids[role], true
}

// Roles returns the tracked roles in configuration order.
func (r *Registry) Roles() []Role {
	roles := make([]Role, len(r.ids))
	for i := range r.ids {
		roles[i] = Role(i)
	}
	return roles
}
