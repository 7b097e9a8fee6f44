// Package etrv implements the state synchronisation and task dispatch engine
// for a HomeMatic IP radiator thermostat (HmIP-eTRV-B, HmIP-eTRV-2) reached
// through the XML-API add-on of a CCU or RaspberryMatic appliance.
//
// # Architecture
//
// A single Session owns every piece of mutable state and processes one event
// at a time:
//
//	heartbeat ──► Scheduler ──┐
//	                          ├──► Controller ──► appliance (HTTP GET)
//	command ───► Gateway ─────┘         │
//	                                    ▼
//	                 Decode ──► Reconciler ──► Display ──► sinks (MQTT, InfluxDB)
//
// The Controller allows at most one task in flight. A heartbeat that lands
// while a task is outstanding is skipped, and a command is rejected with
// ErrBusy rather than queued.
//
// # Datapoints
//
// The appliance exposes each value as a datapoint with a numeric ise_id.
// The Registry maps the fixed roles (setpoint, temperature, battery, valve,
// profile) to those identifiers in configuration order.
//
// # Thread Safety
//
// Controller, Scheduler, Gateway and Reconciler are not safe for concurrent
// use; they are owned by the Session event loop. The exported Session methods
// are safe to call from any goroutine.
package etrv
