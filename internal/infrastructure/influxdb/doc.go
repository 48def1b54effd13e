// Package influxdb provides optional telemetry for the bridge.
//
// When enabled, the bridge records light state changes, availability
// transitions, and poll latency as time-series points. Writes are
// non-blocking and batched; a failed or disabled telemetry sink never
// affects device control.
//
// All write methods are safe to call on a nil *Client, which keeps the
// call sites free of enabled/disabled branching.
package influxdb
