// Package config handles loading and validating eTRV bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with ETRV_* environment variables
//   - Validation of required fields, reporting every problem at once
//   - Default value handling (the appliance defaults match a stock
//     RaspberryMatic with one HmIP-eTRV)
//
// Security Considerations:
//   - The MQTT password and InfluxDB token should be set via environment variables
//   - Dump masks both before the configuration reaches a log
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Appliance.Address)
package config
