package bridge

import (
	"time"

	"github.com/nerrad567/gray-logic-etrv/internal/etrv"
)

// Protocol identifies this bridge in every message it publishes.
const Protocol = "etrv"

// Commands accepted on the command topics.
const (
	CommandSetSetpoint = "set_setpoint"
	CommandSetProfile  = "set_profile"
)

// CommandMessage is received on graylogic/command/etrv/{device_id}/{role}.
//
// Level is the target temperature for set_setpoint and the selector level
// (10, 20, 30) for set_profile. When Command is empty it is taken from the
// topic's role segment.
type CommandMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Command   string    `json:"command"`
	Level     *float64  `json:"level"`
	Source    string    `json:"source,omitempty"`
}

// AckStatus is the outcome reported for a command.
type AckStatus string

const (
	// AckAccepted means the write task was armed on the appliance channel.
	AckAccepted AckStatus = "accepted"

	// AckFailed means nothing was sent.
	AckFailed AckStatus = "failed"
)

// Error codes carried by failed acks.
const (
	ErrCodeBusy              = "BUSY"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage answers a command on graylogic/ack/etrv/{device_id}.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError explains a failed ack.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage mirrors one display surface.
// Topic: graylogic/state/etrv/{device_id}/{role}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string        `json:"device_id"`
	Timestamp time.Time     `json:"timestamp"`
	Role      string        `json:"role"`
	Unit      int           `json:"unit"`
	NValue    int           `json:"n_value"`
	SValue    string        `json:"s_value"`
	Severity  etrv.Severity `json:"severity,omitempty"`
	Protocol  string        `json:"protocol"`
}

// HealthStatus is the bridge's operational status.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"

	// HealthOffline is only ever published by the broker, as the LWT.
	HealthOffline HealthStatus = "offline"
)

// HealthMessage is published on graylogic/health/etrv every interval.
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string            `json:"bridge"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Connection    *ConnectionStatus `json:"connection,omitempty"`
	Statistics    *Statistics       `json:"statistics,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// ConnectionStatus describes the appliance channel.
type ConnectionStatus struct {
	// Status is the controller state: disconnected, connecting, awaiting, idle.
	Status   string `json:"status"`
	DeviceID string `json:"device_id"`
	Task     string `json:"task"`
}

// Statistics are the session counters.
type Statistics struct {
	Fetches     uint64     `json:"fetches"`
	Writes      uint64     `json:"writes"`
	Errors      uint64     `json:"errors"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// NewStateMessage builds the retained state for a display update.
func NewStateMessage(deviceID string, u etrv.DisplayUpdate) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Role:      u.Role.String(),
		Unit:      u.Role.Unit(),
		NValue:    u.NValue,
		SValue:    u.SValue,
		Severity:  u.Severity,
		Protocol:  Protocol,
	}
}

// NewAckMessage builds an accepted ack for cmd.
func NewAckMessage(deviceID string, cmd CommandMessage) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    AckAccepted,
		Protocol:  Protocol,
	}
}

// NewAckError builds a failed ack for cmd.
func NewAckError(deviceID string, cmd CommandMessage, code, message string) AckMessage {
	ack := NewAckMessage(deviceID, cmd)
	ack.Status = AckFailed
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewHealthMessage builds a health report from a session snapshot.
func NewHealthMessage(bridgeID, version string, status HealthStatus, snap etrv.Snapshot, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}
	if snap.DeviceID == "" {
		return msg
	}

	msg.Connection = &ConnectionStatus{
		Status:   snap.Connection,
		DeviceID: snap.DeviceID,
		Task:     snap.Task,
	}
	msg.Statistics = &Statistics{
		Fetches:   snap.Stats.Fetches,
		Writes:    snap.Stats.Writes,
		Errors:    snap.Stats.Errors,
		LastError: snap.Stats.LastError,
	}
	if !snap.Stats.LastSuccess.IsZero() {
		last := snap.Stats.LastSuccess
		msg.Statistics.LastSuccess = &last
	}
	return msg
}

// NewLWTMessage is the payload the broker publishes if the bridge dies.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected disconnect",
	}
}
