package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the WLED-Joy bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Instance Instance       `yaml:"instance"`
	Devices  []DeviceConfig `yaml:"devices"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Bridge   BridgeConfig   `yaml:"bridge"`
}

// Instance identifies this bridge instance. The ID namespaces MQTT topics so
// several bridge instances can share one broker without colliding.
type Instance struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DeviceConfig describes one LED controller managed by the bridge.
// The address is supplied by an external discovery collaborator (or by hand);
// the bridge performs no discovery itself.
type DeviceConfig struct {
	// ID is the stable device identifier used in MQTT topics and storage.
	ID string `yaml:"id"`

	// Name is the human-readable device name.
	Name string `yaml:"name"`

	// Host is the device network address, host or host:port.
	Host string `yaml:"host"`

	// PollInterval is the state polling period in seconds.
	PollInterval int `yaml:"poll_interval"`

	// CatalogInterval is the effect/preset catalog refresh period in seconds.
	CatalogInterval int `yaml:"catalog_interval"`

	// Timeout is the per-request device call timeout in seconds.
	Timeout int `yaml:"timeout"`

	// UnreachableThreshold is the number of consecutive failed refreshes
	// before the device is marked unavailable.
	UnreachableThreshold int `yaml:"unreachable_threshold"`

	// KeepMainLight keeps the device's master channel as a separate control
	// instead of folding master brightness into the segment view.
	KeepMainLight bool `yaml:"keep_main_light"`

	// SupportsCCT overrides the probed CCT capability when set.
	// Leave unset to trust the device's capability report.
	SupportsCCT *bool `yaml:"supports_cct"`

	// Push enables the device's WebSocket push channel in addition to polling.
	Push bool `yaml:"push"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite state-history settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
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
}

// BridgeConfig contains platform-facing bridge behaviour.
type BridgeConfig struct {
	// Optimistic returns command results immediately from the projected
	// state instead of blocking until the device confirms.
	Optimistic bool `yaml:"optimistic"`

	// HealthInterval is the health publication period in seconds.
	HealthInterval int `yaml:"health_interval"`
}

// Default values applied before the YAML file is read.
const (
	defaultPollInterval         = 10
	defaultCatalogInterval      = 300
	defaultTimeout              = 5
	defaultUnreachableThreshold = 3
	defaultHealthInterval       = 30
)

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WLEDJOY_SECTION_KEY
// For example: WLEDJOY_MQTT_HOST, WLEDJOY_DATABASE_PATH.
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
	applyDeviceDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Instance: Instance{
			ID:   "wledjoy-01",
			Name: "WLED-Joy Bridge",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wledjoy-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/wledjoy.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Bridge: BridgeConfig{
			HealthInterval: defaultHealthInterval,
		},
	}
}

// applyDeviceDefaults fills per-device zero values with defaults.
func applyDeviceDefaults(cfg *Config) {
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.PollInterval <= 0 {
			d.PollInterval = defaultPollInterval
		}
		if d.CatalogInterval <= 0 {
			d.CatalogInterval = defaultCatalogInterval
		}
		if d.Timeout <= 0 {
			d.Timeout = defaultTimeout
		}
		if d.UnreachableThreshold <= 0 {
			d.UnreachableThreshold = defaultUnreachableThreshold
		}
		if d.Name == "" {
			d.Name = d.ID
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WLEDJOY_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("WLEDJOY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WLEDJOY_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("WLEDJOY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WLEDJOY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("WLEDJOY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("WLEDJOY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("WLEDJOY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Instance.ID == "" {
		errs = append(errs, "instance.id is required")
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device is required")
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
			continue
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicated", i, d.ID))
		}
		seen[d.ID] = true
		if d.Host == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].host is required", i))
		}
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port <= 0 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be 1-65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1 or 2")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not valid", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// PollIntervalDuration returns the device poll interval as a time.Duration.
func (d DeviceConfig) PollIntervalDuration() time.Duration {
	return time.Duration(d.PollInterval) * time.Second
}

// CatalogIntervalDuration returns the catalog refresh period as a time.Duration.
func (d DeviceConfig) CatalogIntervalDuration() time.Duration {
	return time.Duration(d.CatalogInterval) * time.Second
}

// TimeoutDuration returns the per-call device timeout as a time.Duration.
func (d DeviceConfig) TimeoutDuration() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

// HealthIntervalDuration returns the health publication period as a time.Duration.
func (b BridgeConfig) HealthIntervalDuration() time.Duration {
	return time.Duration(b.HealthInterval) * time.Second
}
