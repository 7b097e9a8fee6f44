// Package bridge exposes a valve session over MQTT.
//
// Topics (device 1541 shown):
//
//	graylogic/state/etrv/1541/{role}    retained display state, QoS 1
//	graylogic/command/etrv/1541/{role}  set_setpoint / set_profile commands
//	graylogic/ack/etrv/1541             command acknowledgments
//	graylogic/health/etrv               retained health, LWT "offline"
//
// A command payload looks like:
//
//	{"id": "c-1", "command": "set_setpoint", "level": 21.5}
//
// It is answered with an "accepted" ack once the write is armed on the
// appliance channel, or "failed" with BUSY while another request is in
// flight. A failed command is not queued.
//
// TelemetrySink is the companion display sink feeding InfluxDB.
package bridge
