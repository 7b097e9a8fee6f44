// Package api is the bridge's local HTTP API.
//
// Endpoints (all under /api/v1):
//
//	GET  /health     session and infrastructure status
//	GET  /state      session snapshot: device state, display, counters
//	POST /refresh    fetch all datapoints now
//	PUT  /setpoint   {"value": 21.5}
//	PUT  /profile    {"level": 20}
//	GET  /audit      ?action=&role=&limit=&offset=
//
// Commands answer 202 once the write is armed. Only one request is in
// flight on the appliance channel: a command arriving meanwhile answers
// 409 and is not queued.
//
// The server binds to 127.0.0.1 by default and has no authentication.
package api
