package mqtt

import "testing"

func TestTopics(t *testing.T) {
	topics := NewTopics("wledjoy-01")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"command", topics.Command("strip-living"), "wledjoy-01/command/strip-living"},
		{"ack", topics.Ack("strip-living"), "wledjoy-01/ack/strip-living"},
		{"state", topics.State("strip-living"), "wledjoy-01/state/strip-living"},
		{"availability", topics.Availability("strip-living"), "wledjoy-01/availability/strip-living"},
		{"health", topics.Health(), "wledjoy-01/health/bridge"},
		{"status", topics.SystemStatus(), "wledjoy-01/status"},
		{"all commands", topics.AllCommands(), "wledjoy-01/command/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDeviceFromCommandTopic(t *testing.T) {
	topics := NewTopics("wledjoy-01")

	tests := []struct {
		name  string
		topic string
		want  string
	}{
		{"valid topic", "wledjoy-01/command/strip-living", "strip-living"},
		{"other instance", "wledjoy-02/command/strip-living", ""},
		{"state topic", "wledjoy-01/state/strip-living", ""},
		{"no device", "wledjoy-01/command/", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := topics.DeviceFromCommandTopic(tt.topic); got != tt.want {
				t.Errorf("DeviceFromCommandTopic(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}
