package mqtt

import "fmt"

// Topic layout: {instance}/{category}/{device_id}
//
// The instance prefix is the bridge instance ID from config, so several
// bridge instances (or a renamed co-existing install) can share one broker
// without topic collisions.
//
// Categories:
//
//	command      platform → bridge, device commands
//	ack          bridge → platform, command acknowledgements
//	state        bridge → platform, light state views (retained)
//	availability bridge → platform, online/offline per device (retained)
//	health       bridge → platform, bridge process health (retained)
//	status       bridge → platform, client session status + LWT (retained)

// Topics builds MQTT topics namespaced by bridge instance ID.
type Topics struct {
	prefix string
}

// NewTopics creates a topic builder for the given instance ID.
func NewTopics(instanceID string) Topics {
	return Topics{prefix: instanceID}
}

// Command returns the command topic for a device.
//
// Example: wledjoy-01/command/strip-living
func (t Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", t.prefix, deviceID)
}

// Ack returns the command acknowledgement topic for a device.
//
// Example: wledjoy-01/ack/strip-living
func (t Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", t.prefix, deviceID)
}

// State returns the state topic for a device.
//
// Example: wledjoy-01/state/strip-living
func (t Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", t.prefix, deviceID)
}

// Availability returns the availability topic for a device.
//
// Example: wledjoy-01/availability/strip-living
func (t Topics) Availability(deviceID string) string {
	return fmt.Sprintf("%s/availability/%s", t.prefix, deviceID)
}

// Health returns the bridge health topic.
//
// Example: wledjoy-01/health/bridge
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health/bridge", t.prefix)
}

// SystemStatus returns the bridge session status topic (also the LWT topic).
//
// Example: wledjoy-01/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", t.prefix)
}

// AllCommands returns a pattern matching command topics for all devices.
//
// Pattern: wledjoy-01/command/+
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+", t.prefix)
}

// DeviceFromCommandTopic extracts the device ID from a command topic.
// Returns "" if the topic does not match the command layout.
func (t Topics) DeviceFromCommandTopic(topic string) string {
	prefix := fmt.Sprintf("%s/command/", t.prefix)
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	return topic[len(prefix):]
}
