package bridge

import (
	"github.com/nerrad567/gray-logic-etrv/internal/etrv"
)

// MetricWriter stores one valve value, typically the InfluxDB client.
type MetricWriter interface {
	WriteValveMetric(deviceID, role string, value float64)
}

// TelemetrySink writes every display update as a telemetry point.
// It implements etrv.DisplaySink.
type TelemetrySink struct {
	deviceID string
	writer   MetricWriter
}

// NewTelemetrySink creates a sink writing points for deviceID.
func NewTelemetrySink(deviceID string, writer MetricWriter) *TelemetrySink {
	return &TelemetrySink{deviceID: deviceID, writer: writer}
}

// Show writes u.Value tagged with u's role. Writes are asynchronous, so it
// never fails.
func (s *TelemetrySink) Show(u etrv.DisplayUpdate) error {
	s.writer.WriteValveMetric(s.deviceID, u.Role.String(), u.Value)
	return nil
}
