package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/wledjoy/wledbridge/internal/light"
)

// Command names accepted on the command topic.
const (
	CmdSetPower      = "set_power"
	CmdSetBrightness = "set_brightness"
	CmdSetColor      = "set_color"
	CmdSetColorTemp  = "set_color_temp"
	CmdSelect        = "select"
	CmdSetSpeed      = "set_speed"
	CmdSetIntensity  = "set_intensity"
	CmdRestart       = "restart"
	CmdRefresh       = "refresh"
)

// CommandMessage is sent by the platform to execute a device command.
// Topic: {instance}/command/{device_id}
type CommandMessage struct {
	// ID uniquely identifies this command for ack correlation.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Command is the command name (see the Cmd* constants).
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"brightness": 128} for set_brightness
	//   {"rgb": [255, 160, 0]} for set_color
	//   {"mired": 250} or {"kelvin": 4000} for set_color_temp
	//   {"entry": "Sunrise"} for select
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated (api, automation, ...).
	Source string `json:"source,omitempty"`
}

// AckStatus is the acknowledgement outcome of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was executed and confirmed (or, in
	// optimistic mode, queued onto the device loop).
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the device did not confirm within the timeout.
	AckTimeout AckStatus = "timeout"
)

// AckMessage acknowledges a command.
// Topic: {instance}/ack/{device_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError carries details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeUnknownDevice     = "UNKNOWN_DEVICE"
	ErrCodeUnknownSelection  = "UNKNOWN_SELECTION"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// NewAckMessage creates a success acknowledgement for a command.
func NewAckMessage(cmd CommandMessage, deviceID string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    status,
	}
}

// NewAckError creates a failure acknowledgement with error details.
func NewAckError(cmd CommandMessage, deviceID, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    status,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// LightState is the platform-facing light state carried in state messages.
// Exactly one of RGB / color-temperature is set, matching the published view.
type LightState struct {
	On         bool   `json:"on"`
	Brightness uint8  `json:"brightness"`
	ColorMode  string `json:"color_mode"`

	RGB             *[3]uint8 `json:"rgb,omitempty"`
	ColorTempMired  int       `json:"color_temp_mired,omitempty"`
	ColorTempKelvin int       `json:"color_temp_kelvin,omitempty"`

	// Selected is the active entry in the selectable catalog.
	Selected  string `json:"selected,omitempty"`
	Speed     uint8  `json:"speed"`
	Intensity uint8  `json:"intensity"`
}

// CatalogEntry is one selectable item in a state message.
type CatalogEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Origin string `json:"origin"`
}

// Diagnostics carries the synchronization counters for observability.
type Diagnostics struct {
	Generation uint64     `json:"generation"`
	Rejected   uint64     `json:"rejected"`
	LastRead   *time.Time `json:"last_read,omitempty"`
}

// StateMessage publishes a device's current view.
// Topic: {instance}/state/{device_id}, QoS 1, retained.
type StateMessage struct {
	// EventID uniquely identifies this publication.
	EventID string `json:"event_id"`

	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	Available bool       `json:"available"`
	State     LightState `json:"state"`

	// Catalog is the unified selectable list (presets first, then effects).
	Catalog []CatalogEntry `json:"catalog,omitempty"`

	Diagnostics Diagnostics `json:"diagnostics"`
}

// NewStateMessage builds a state message from a published loop state.
func NewStateMessage(deviceID string, s light.State) StateMessage {
	msg := StateMessage{
		EventID:   uuid.NewString(),
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Available: s.Available,
		State: LightState{
			On:         s.View.Power,
			Brightness: s.View.Brightness,
			ColorMode:  string(s.View.Mode),
			Selected:   s.View.Selected,
			Speed:      s.View.Speed,
			Intensity:  s.View.Intensity,
		},
		Diagnostics: Diagnostics{
			Generation: s.Generation,
			Rejected:   s.Rejected,
		},
	}

	switch s.View.Mode {
	case light.ModeRGB:
		rgb := s.View.RGB
		msg.State.RGB = &rgb
	case light.ModeColorTemp:
		msg.State.ColorTempMired = s.View.ColorTempMired
		msg.State.ColorTempKelvin = s.View.ColorTempKelvin
	}

	if s.HasState {
		lastRead := s.LastRead.UTC()
		msg.Diagnostics.LastRead = &lastRead
	}

	for _, e := range s.Entries {
		msg.Catalog = append(msg.Catalog, CatalogEntry{
			ID:     e.ID,
			Name:   e.Name,
			Origin: string(e.Origin),
		})
	}

	return msg
}

// Availability payloads.
// Topic: {instance}/availability/{device_id}, retained.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// HealthStatus is the bridge process health.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge process health.
// Topic: {instance}/health/bridge, QoS 1, retained.
type HealthMessage struct {
	Bridge           string       `json:"bridge"`
	Timestamp        time.Time    `json:"timestamp"`
	Status           HealthStatus `json:"status"`
	Version          string       `json:"version"`
	UptimeSeconds    int64        `json:"uptime_seconds"`
	DevicesManaged   int          `json:"devices_managed"`
	DevicesAvailable int          `json:"devices_available"`
	Reason           string       `json:"reason,omitempty"`
}
