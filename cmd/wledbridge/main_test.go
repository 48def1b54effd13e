package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("WLEDJOY_CONFIG")
	defer os.Setenv("WLEDJOY_CONFIG", originalEnv)

	os.Setenv("WLEDJOY_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_NoDevices verifies run fails when no devices are configured.
func TestRun_NoDevices(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
instance:
  id: test-bridge

devices: []

database:
  enabled: false

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
  qos: 1

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("WLEDJOY_CONFIG")
	defer os.Setenv("WLEDJOY_CONFIG", originalEnv)
	os.Setenv("WLEDJOY_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with no devices configured")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("WLEDJOY_CONFIG")
	defer os.Setenv("WLEDJOY_CONFIG", originalEnv)

	os.Unsetenv("WLEDJOY_CONFIG")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("WLEDJOY_CONFIG")
	defer os.Setenv("WLEDJOY_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("WLEDJOY_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}
