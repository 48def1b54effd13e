// Package bridge connects device synchronization loops to the MQTT
// platform boundary.
//
// Inbound, it subscribes to the per-device command topics, validates and
// dispatches commands to the owning device controller, and acknowledges
// every command with an accepted/failed/timeout result. Outbound, it
// publishes retained state views and availability transitions whenever a
// device loop reports a change, records the change in the state history
// store, and forwards telemetry points to InfluxDB.
//
// A HealthReporter publishes periodic bridge process health, degrading the
// reported status when the broker link drops or any managed device becomes
// unavailable.
package bridge
