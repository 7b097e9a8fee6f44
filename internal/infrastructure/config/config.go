package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the eTRV bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Appliance ApplianceConfig `yaml:"appliance"`
	Poll      PollConfig      `yaml:"poll"`
	Display   DisplayConfig   `yaml:"display"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ApplianceConfig describes the CCU/RaspberryMatic appliance and the valve
// behind it.
type ApplianceConfig struct {
	// Address is the appliance host name or IP address.
	Address string `yaml:"address"`

	// Port is the appliance HTTP port. Default: 80
	Port int `yaml:"port"`

	// APIPath is where the XML-API add-on is mounted.
	// Default: "/addons/xmlapi"
	APIPath string `yaml:"api_path"`

	// DeviceID is the appliance's ise_id of the thermostat device.
	DeviceID string `yaml:"device_id"`

	// Datapoints is the comma separated list of datapoint ise_ids in role
	// order: setpoint, temperature, low battery, valve level, active profile.
	Datapoints string `yaml:"datapoints"`

	// FeatureLevel is how many of those roles are tracked (3-5). Default: 5
	FeatureLevel int `yaml:"feature_level"`

	// RequestTimeout bounds a single connect and round trip (in seconds).
	// Default: 30
	RequestTimeout int `yaml:"request_timeout"`
}

// PollConfig controls the heartbeat-driven fetch cycle.
type PollConfig struct {
	// IntervalSeconds is the poll period. Default: 60
	IntervalSeconds int `yaml:"interval_seconds"`

	// HeartbeatSeconds is the tick granularity the period is derived from.
	// Default: 60
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

// DisplayConfig contains user-visible display texts.
type DisplayConfig struct {
	BatteryOKMessage  string `yaml:"battery_ok_message"`
	BatteryLowMessage string `yaml:"battery_low_message"`
}

// DatabaseConfig contains SQLite database settings.
// An empty path disables the audit trail.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`

	// Debug dumps the effective configuration at startup.
	Debug bool `yaml:"debug"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ETRV_SECTION_KEY
// For example: ETRV_APPLIANCE_ADDRESS, ETRV_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the plugin's historical defaults.
func defaultConfig() *Config {
	return &Config{
		Appliance: ApplianceConfig{
			Address:        "192.168.1.225",
			Port:           80,
			APIPath:        "/addons/xmlapi",
			DeviceID:       "1541",
			Datapoints:     "1584,1567,1549,1576,1566",
			FeatureLevel:   5,
			RequestTimeout: 30,
		},
		Poll: PollConfig{
			IntervalSeconds:  60,
			HeartbeatSeconds: 60,
		},
		Display: DisplayConfig{
			BatteryOKMessage:  "OK",
			BatteryLowMessage: "Low",
		},
		Database: DatabaseConfig{
			Path:        "./data/etrv.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "etrv-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "etrv",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ETRV_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Appliance
	if v := os.Getenv("ETRV_APPLIANCE_ADDRESS"); v != "" {
		cfg.Appliance.Address = v
	}
	if v := os.Getenv("ETRV_APPLIANCE_DEVICE_ID"); v != "" {
		cfg.Appliance.DeviceID = v
	}
	if v := os.Getenv("ETRV_APPLIANCE_DATAPOINTS"); v != "" {
		cfg.Appliance.Datapoints = v
	}
	if v := os.Getenv("ETRV_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.IntervalSeconds = n
		}
	}

	// Database
	if v, ok := os.LookupEnv("ETRV_DATABASE_PATH"); ok {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ETRV_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ETRV_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ETRV_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("ETRV_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ETRV_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Appliance validation
	if strings.TrimSpace(c.Appliance.Address) == "" {
		errs = append(errs, "appliance.address is required")
	}
	if c.Appliance.Port < 1 || c.Appliance.Port > 65535 {
		errs = append(errs, "appliance.port must be between 1 and 65535")
	}
	if strings.TrimSpace(c.Appliance.DeviceID) == "" {
		errs = append(errs, "appliance.device_id is required")
	}
	if c.Appliance.FeatureLevel < 3 || c.Appliance.FeatureLevel > 5 {
		errs = append(errs, "appliance.feature_level must be between 3 and 5")
	} else if n := len(c.DatapointList()); n < c.Appliance.FeatureLevel {
		errs = append(errs, fmt.Sprintf("appliance.datapoints has %d entries, feature level %d needs %d",
			n, c.Appliance.FeatureLevel, c.Appliance.FeatureLevel))
	}
	if c.Appliance.RequestTimeout < 1 {
		errs = append(errs, "appliance.request_timeout must be at least 1 second")
	}

	// Poll validation
	if c.Poll.IntervalSeconds < 1 {
		errs = append(errs, "poll.interval_seconds must be at least 1")
	}
	if c.Poll.HeartbeatSeconds < 1 {
		errs = append(errs, "poll.heartbeat_seconds must be at least 1")
	}

	// MQTT validation
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DatapointList returns the configured datapoint ise_ids, trimmed.
func (c *Config) DatapointList() []string {
	var ids []string
	for _, part := range strings.Split(c.Appliance.Datapoints, ",") {
		if p := strings.TrimSpace(part); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// GetRequestTimeout returns the appliance request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Appliance.RequestTimeout) * time.Second
}

// GetPollInterval returns the poll period as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// GetHeartbeat returns the heartbeat granularity as a Duration.
func (c *Config) GetHeartbeat() time.Duration {
	return time.Duration(c.Poll.HeartbeatSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

const redacted = "********"

// Redacted returns a copy with credentials masked, suitable for a debug dump.
func (c *Config) Redacted() Config {
	out := *c
	if out.MQTT.Auth.Password != "" {
		out.MQTT.Auth.Password = redacted
	}
	if out.InfluxDB.Token != "" {
		out.InfluxDB.Token = redacted
	}
	return out
}

// Dump renders the redacted configuration as YAML.
func (c *Config) Dump() (string, error) {
	r := c.Redacted()
	data, err := yaml.Marshal(&r)
	if err != nil {
		return "", fmt.Errorf("marshalling config: %w", err)
	}
	return string(data), nil
}
