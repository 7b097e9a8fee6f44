// Package logging provides structured logging for the eTRV bridge.
//
// It wraps log/slog with the bridge's defaults: JSON or text output,
// level filtering and the service/version fields on every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//	  debug: false       # forces debug level and dumps the config at startup
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("session started", "device_id", "1541")
//
// Never log the MQTT password or InfluxDB token; use config.Dump, which
// masks them.
package logging
