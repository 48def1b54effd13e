// Package logging provides structured logging for the WLED-Joy bridge.
//
// This package wraps Go's standard log/slog package to provide consistent,
// structured logging across the application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("device connected", "device", "strip-living")
//	logger.Error("poll failed", "error", err)
//
// Never log secrets: MQTT passwords and InfluxDB tokens must not appear in
// log output.
package logging
