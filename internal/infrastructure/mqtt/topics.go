package mqtt

import "fmt"

// TopicPrefix is the root of every bridge topic.
// Topics follow the flat scheme graylogic/{category}/etrv/{device_id}[/{role}].
const TopicPrefix = "graylogic"

// Protocol is the protocol segment used in topics and messages.
const Protocol = "etrv"

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.State("1541", "temperature")
//	// "graylogic/state/etrv/1541/temperature"
type Topics struct{}

// State returns the retained topic for one display surface.
func (Topics) State(deviceID, role string) string {
	return fmt.Sprintf("%s/state/%s/%s/%s", TopicPrefix, Protocol, deviceID, role)
}

// Command returns the command topic for one role.
func (Topics) Command(deviceID, role string) string {
	return fmt.Sprintf("%s/command/%s/%s/%s", TopicPrefix, Protocol, deviceID, role)
}

// AllCommands returns the wildcard covering every command for a device.
func (Topics) AllCommands(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s/#", TopicPrefix, Protocol, deviceID)
}

// Ack returns the topic for command acknowledgements.
func (Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, deviceID)
}

// Health returns the bridge health topic.
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}
