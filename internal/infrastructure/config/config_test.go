package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

const minimalConfig = `
instance:
  id: "test-bridge"
devices:
  - id: "strip-01"
    host: "192.168.1.40"
mqtt:
  broker:
    host: "localhost"
    port: 1883
`

func TestLoadMinimalConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Instance.ID != "test-bridge" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-bridge")
	}
	if len(cfg.Devices) != 1 {
		t.Fatalf("len(Devices) = %d, want 1", len(cfg.Devices))
	}

	// Defaults should be filled in for omitted device fields.
	d := cfg.Devices[0]
	if d.PollInterval != defaultPollInterval {
		t.Errorf("PollInterval = %d, want default %d", d.PollInterval, defaultPollInterval)
	}
	if d.UnreachableThreshold != defaultUnreachableThreshold {
		t.Errorf("UnreachableThreshold = %d, want default %d", d.UnreachableThreshold, defaultUnreachableThreshold)
	}
	if d.Name != "strip-01" {
		t.Errorf("Name = %q, want device id fallback", d.Name)
	}
	if d.SupportsCCT != nil {
		t.Errorf("SupportsCCT = %v, want nil (probe the device)", *d.SupportsCCT)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() on missing file should fail")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "instance: [unclosed")); err == nil {
		t.Error("Load() on invalid YAML should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config passes",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id",
		},
		{
			name:    "no devices",
			mutate:  func(c *Config) { c.Devices = nil },
			wantErr: "at least one device",
		},
		{
			name: "duplicate device ids",
			mutate: func(c *Config) {
				c.Devices = append(c.Devices, DeviceConfig{ID: "strip-01", Host: "192.168.1.41"})
			},
			wantErr: "duplicated",
		},
		{
			name: "device missing host",
			mutate: func(c *Config) {
				c.Devices[0].Host = ""
			},
			wantErr: "host is required",
		},
		{
			name:    "invalid mqtt port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name: "influx enabled without token",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Bucket = "light"
			},
			wantErr: "influxdb.token",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Devices = []DeviceConfig{{ID: "strip-01", Host: "192.168.1.40"}}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WLEDJOY_MQTT_HOST", "broker.local")
	t.Setenv("WLEDJOY_MQTT_PORT", "8883")
	t.Setenv("WLEDJOY_MQTT_PASSWORD", "secret")
	t.Setenv("WLEDJOY_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("MQTT password not overridden from environment")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging level = %q, want debug", cfg.Logging.Level)
	}
}

func TestDurationHelpers(t *testing.T) {
	d := DeviceConfig{PollInterval: 10, CatalogInterval: 300, Timeout: 5}
	if got := d.PollIntervalDuration().Seconds(); got != 10 {
		t.Errorf("PollIntervalDuration = %vs, want 10s", got)
	}
	if got := d.CatalogIntervalDuration().Seconds(); got != 300 {
		t.Errorf("CatalogIntervalDuration = %vs, want 300s", got)
	}
	if got := d.TimeoutDuration().Seconds(); got != 5 {
		t.Errorf("TimeoutDuration = %vs, want 5s", got)
	}
}
