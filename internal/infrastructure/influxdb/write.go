package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteLightState records one light-state observation.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Called by the bridge on every accepted state view, so the series tracks
// what the platform actually saw, not raw device chatter.
func (c *Client) WriteLightState(deviceID string, on bool, brightness uint8, colorMode string) {
	if !c.IsConnected() {
		return
	}

	onValue := 0
	if on {
		onValue = 1
	}

	point := write.NewPoint(
		"light_state",
		map[string]string{
			"device_id":  deviceID,
			"color_mode": colorMode,
		},
		map[string]interface{}{
			"on":         onValue,
			"brightness": int(brightness),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAvailability records a device availability transition.
func (c *Client) WriteAvailability(deviceID string, available bool) {
	if !c.IsConnected() {
		return
	}

	value := 0
	if available {
		value = 1
	}

	point := write.NewPoint(
		"light_availability",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"available": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePollLatency records how long a device refresh took.
//
// Useful for spotting a controller that is getting slow before it starts
// timing out entirely.
func (c *Client) WritePollLatency(deviceID string, latency time.Duration, success bool) {
	if !c.IsConnected() {
		return
	}

	okValue := 0
	if success {
		okValue = 1
	}

	point := write.NewPoint(
		"poll_latency",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"latency_ms": float64(latency.Microseconds()) / millisecondsPerSecond,
			"success":    okValue,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
