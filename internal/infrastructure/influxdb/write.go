package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementValve holds one point per changed valve value.
const MeasurementValve = "valve"

// WriteValveMetric records a valve value, tagged with the appliance device
// and the role (setpoint, temperature, battery, valve, profile).
// The write is non-blocking; points are batched.
//
// Example:
//
//	client.WriteValveMetric("1541", "temperature", 21.0)
func (c *Client) WriteValveMetric(deviceID, role string, value float64) {
	c.WritePointWithTime(MeasurementValve,
		map[string]string{
			"device_id": deviceID,
			"role":      role,
		},
		map[string]any{
			"value": value,
		},
		time.Now(),
	)
}

// WritePointWithTime writes a point with full control over tags, fields
// and timestamp. Dropped silently when not connected.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
