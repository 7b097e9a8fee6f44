// Package influxdb records valve telemetry in InfluxDB.
//
// It wraps influxdb-client-go v2: every changed display value and every
// confirmed write becomes a point in the "valve" measurement, tagged with
// device_id and role.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteValveMetric("1541", "temperature", 21.0)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval);
// failures arrive through SetOnError. Connection and health check errors
// are returned directly.
package influxdb
