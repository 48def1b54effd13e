// Package config loads and validates the bridge configuration.
//
// Configuration is read from a YAML file, overlaid with WLEDJOY_* environment
// variables, and validated before use. Defaults are applied for everything a
// small installation does not need to spell out, so a minimal config is just
// an instance ID, a broker address, and a device list.
//
// # Example
//
//	instance:
//	  id: "wledjoy-01"
//	devices:
//	  - id: "strip-living"
//	    host: "192.168.1.40"
//	mqtt:
//	  broker:
//	    host: "localhost"
//	    port: 1883
//
// Secrets (MQTT password, InfluxDB token) should come from the environment
// rather than the file: WLEDJOY_MQTT_PASSWORD, WLEDJOY_INFLUXDB_TOKEN.
package config
