package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wledjoy/wledbridge/internal/history"
	"github.com/wledjoy/wledbridge/internal/infrastructure/influxdb"
	"github.com/wledjoy/wledbridge/internal/infrastructure/mqtt"
	"github.com/wledjoy/wledbridge/internal/light"
	"github.com/wledjoy/wledbridge/internal/wled"
)

// commandTimeout bounds one platform command end to end, including the
// device round trip performed by the loop.
const commandTimeout = 10 * time.Second

// MQTTClient is the broker surface the bridge drives. *mqtt.Client
// satisfies it; tests substitute a recording fake.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// DeviceController is the per-device operation surface. *light.Loop
// satisfies it.
type DeviceController interface {
	State() light.State
	SetPower(ctx context.Context, on bool) error
	SetBrightness(ctx context.Context, bri uint8) error
	SetColor(ctx context.Context, rgb [3]uint8) error
	SetColorTemperature(ctx context.Context, kelvin int) error
	SetColorTemperatureMired(ctx context.Context, mired int) error
	SelectEntry(ctx context.Context, id string) error
	SetEffectSpeed(ctx context.Context, speed uint8) error
	SetEffectIntensity(ctx context.Context, intensity uint8) error
	Restart(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Logger receives bridge events. *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Options holds the bridge collaborators.
type Options struct {
	InstanceID string
	Version    string

	MQTT   MQTTClient
	Topics mqtt.Topics

	// Devices maps device ID to its controller.
	Devices map[string]DeviceController

	// History is the optional state-change audit store.
	History *history.Repository

	// Telemetry is the optional time-series sink. Nil-safe.
	Telemetry *influxdb.Client

	// HealthInterval between bridge health reports.
	HealthInterval time.Duration

	Logger Logger
}

// Bridge connects the device synchronization loops to the MQTT platform
// boundary: commands in, state/availability/ack/health out.
//
// Thread Safety: all methods are safe for concurrent use. HandleUpdate is
// invoked from each device's loop goroutine.
type Bridge struct {
	instanceID string
	mqtt       MQTTClient
	topics     mqtt.Topics
	devices    map[string]DeviceController
	history    *history.Repository
	telemetry  *influxdb.Client
	health     *HealthReporter
	logger     Logger

	// published tracks the last state published per device, for change
	// suppression and availability edge detection.
	mu        sync.Mutex
	published map[string]publishedState

	// commandSeen marks devices whose next update was caused by a platform
	// command, so the history row records the right source.
	commandSeen map[string]bool

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// publishedState is the slice of loop state that matters for dedupe.
type publishedState struct {
	view      light.View
	available bool
	checksum  uint64
	seen      bool
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("bridge: MQTT client is required")
	}
	if len(opts.Devices) == 0 {
		return nil, fmt.Errorf("bridge: at least one device is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		instanceID:  opts.InstanceID,
		mqtt:        opts.MQTT,
		topics:      opts.Topics,
		devices:     opts.Devices,
		history:     opts.History,
		telemetry:   opts.Telemetry,
		logger:      logger,
		published:   make(map[string]publishedState),
		commandSeen: make(map[string]bool),
		ctx:         ctx,
		ctxCancel:   cancel,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		InstanceID:  opts.InstanceID,
		Version:     opts.Version,
		Topic:       opts.Topics.Health(),
		Interval:    opts.HealthInterval,
		Publisher:   opts.MQTT,
		DeviceStats: b.deviceStats,
		Logger:      logger,
	})

	return b, nil
}

// Start subscribes to command topics and begins health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("failed to publish starting status", "error", err)
	}

	topic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(topic, 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("bridge: subscribing to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)

	// Seed retained topics so subscribers see every device immediately,
	// even ones that have not produced an update yet.
	for deviceID, ctrl := range b.devices {
		b.HandleUpdate(deviceID, ctrl.State())
	}

	b.health.Start(ctx)

	b.logger.Info("bridge started",
		"instance_id", b.instanceID,
		"devices", len(b.devices),
	)
	return nil
}

// Stop shuts the bridge down: in-flight commands are cancelled and a final
// stopping health status is published.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.health.Stop()
		b.logger.Info("bridge stopped")
	})
}

// HandleUpdate publishes a device's new state. Wire it as the loop's update
// handler; it also runs once per device at Start for retained-topic seeding.
//
// Publication is change-suppressed on (view, availability, catalog): reject
// counter churn alone does not produce traffic.
func (b *Bridge) HandleUpdate(deviceID string, state light.State) {
	next := publishedState{
		view:      state.View,
		available: state.Available,
		checksum:  state.CatalogChecksum,
		seen:      true,
	}

	b.mu.Lock()
	prev := b.published[deviceID]
	fromCommand := b.commandSeen[deviceID]
	if prev == next {
		b.mu.Unlock()
		return
	}
	b.published[deviceID] = next
	b.commandSeen[deviceID] = false
	b.mu.Unlock()

	b.publishState(deviceID, state)

	if !prev.seen || prev.available != next.available {
		b.publishAvailability(deviceID, state.Available)
		if err := b.health.PublishNow(); err != nil {
			b.logger.Warn("failed to publish health after availability change", "error", err)
		}
	}

	b.record(deviceID, state, fromCommand)
}

func (b *Bridge) publishState(deviceID string, state light.State) {
	msg := NewStateMessage(deviceID, state)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal state message", "device_id", deviceID, "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.State(deviceID), payload, 1, true); err != nil {
		b.logger.Error("failed to publish state", "device_id", deviceID, "error", err)
	}
}

func (b *Bridge) publishAvailability(deviceID string, available bool) {
	payload := AvailabilityOffline
	if available {
		payload = AvailabilityOnline
	}
	if err := b.mqtt.Publish(b.topics.Availability(deviceID), []byte(payload), 1, true); err != nil {
		b.logger.Error("failed to publish availability", "device_id", deviceID, "error", err)
	}
	b.logger.Info("device availability changed",
		"device_id", deviceID,
		"available", available,
	)
}

// record writes the audit row and telemetry points for an accepted update.
// Both sinks are best-effort; a failure is logged and never interferes with
// device control.
func (b *Bridge) record(deviceID string, state light.State, fromCommand bool) {
	if b.history != nil {
		source := history.SourcePoll
		if fromCommand {
			source = history.SourceCommand
		}
		rctx, cancel := context.WithTimeout(b.ctx, time.Second)
		if err := b.history.Record(rctx, deviceID, history.NewStateRecord(state), source); err != nil {
			b.logger.Warn("failed to record state history", "device_id", deviceID, "error", err)
		}
		cancel()
	}

	b.telemetry.WriteLightState(deviceID, state.View.Power, state.View.Brightness, string(state.View.Mode))
	b.telemetry.WriteAvailability(deviceID, state.Available)
}

// deviceStats reports (managed, available) counts for health reporting.
func (b *Bridge) deviceStats() (int, int) {
	available := 0
	for _, ctrl := range b.devices {
		if ctrl.State().Available {
			available++
		}
	}
	return len(b.devices), available
}

// handleCommandMessage parses and executes one platform command.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) error {
	deviceID := b.topics.DeviceFromCommandTopic(topic)
	if deviceID == "" {
		b.logger.Warn("command on unrecognized topic", "topic", topic)
		return nil
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("undecodable command payload",
			"device_id", deviceID,
			"error", err,
		)
		return nil
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device_id", deviceID,
		"command", cmd.Command,
	)

	ctrl, ok := b.devices[deviceID]
	if !ok {
		b.publishAck(deviceID, NewAckError(cmd, deviceID, ErrCodeUnknownDevice,
			fmt.Sprintf("device %s is not managed by this bridge", deviceID)))
		return nil
	}

	b.mu.Lock()
	b.commandSeen[deviceID] = true
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.execute(ctx, ctrl, cmd); err != nil {
		code, msg := classifyCommandError(err)
		b.publishAck(deviceID, NewAckError(cmd, deviceID, code, msg))
		return nil
	}

	b.publishAck(deviceID, NewAckMessage(cmd, deviceID, AckAccepted))
	return nil
}

// execute dispatches a command to the controller.
func (b *Bridge) execute(ctx context.Context, ctrl DeviceController, cmd CommandMessage) error {
	switch cmd.Command {
	case CmdSetPower:
		on, err := boolParam(cmd.Parameters, "on")
		if err != nil {
			return err
		}
		return ctrl.SetPower(ctx, on)

	case CmdSetBrightness:
		bri, err := channelParam(cmd.Parameters, "brightness")
		if err != nil {
			return err
		}
		return ctrl.SetBrightness(ctx, bri)

	case CmdSetColor:
		rgb, err := rgbParam(cmd.Parameters)
		if err != nil {
			return err
		}
		return ctrl.SetColor(ctx, rgb)

	case CmdSetColorTemp:
		if kelvin, err := intParam(cmd.Parameters, "kelvin"); err == nil {
			return ctrl.SetColorTemperature(ctx, kelvin)
		}
		mired, err := intParam(cmd.Parameters, "mired")
		if err != nil {
			return errParameters("either 'kelvin' or 'mired' is required")
		}
		return ctrl.SetColorTemperatureMired(ctx, mired)

	case CmdSelect:
		entry, err := stringParam(cmd.Parameters, "entry")
		if err != nil {
			return err
		}
		return ctrl.SelectEntry(ctx, entry)

	case CmdSetSpeed:
		speed, err := channelParam(cmd.Parameters, "speed")
		if err != nil {
			return err
		}
		return ctrl.SetEffectSpeed(ctx, speed)

	case CmdSetIntensity:
		intensity, err := channelParam(cmd.Parameters, "intensity")
		if err != nil {
			return err
		}
		return ctrl.SetEffectIntensity(ctx, intensity)

	case CmdRestart:
		return ctrl.Restart(ctx)

	case CmdRefresh:
		return ctrl.Refresh(ctx)

	default:
		return fmt.Errorf("%w: unknown command %q", errInvalidCommand, cmd.Command)
	}
}

func (b *Bridge) publishAck(deviceID string, ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "device_id", deviceID, "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(deviceID), payload, 1, false); err != nil {
		b.logger.Error("failed to publish ack", "device_id", deviceID, "error", err)
	}
	if ack.Error != nil {
		b.logger.Warn("command failed",
			"device_id", deviceID,
			"command_id", ack.CommandID,
			"code", ack.Error.Code,
			"message", ack.Error.Message,
		)
	}
}

// Internal parameter errors, classified into ack codes.
var (
	errInvalidCommand    = errors.New("bridge: invalid command")
	errInvalidParameters = errors.New("bridge: invalid parameters")
)

func errParameters(msg string) error {
	return fmt.Errorf("%w: %s", errInvalidParameters, msg)
}

// classifyCommandError maps an execution failure to an ack error code.
func classifyCommandError(err error) (code, message string) {
	switch {
	case errors.Is(err, wled.ErrUnreachable):
		return ErrCodeDeviceUnreachable, err.Error()
	case errors.Is(err, light.ErrUnknownIdentifier):
		return ErrCodeUnknownSelection, err.Error()
	case errors.Is(err, errInvalidCommand):
		return ErrCodeInvalidCommand, err.Error()
	case errors.Is(err, errInvalidParameters):
		return ErrCodeInvalidParameters, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout, "command timed out"
	default:
		return ErrCodeBridgeError, err.Error()
	}
}

// Parameter extraction. JSON numbers arrive as float64.

func boolParam(params map[string]any, key string) (bool, error) {
	v, ok := params[key]
	if !ok {
		return false, errParameters("missing '" + key + "' parameter")
	}
	b, ok := v.(bool)
	if !ok {
		return false, errParameters("'" + key + "' must be a boolean")
	}
	return b, nil
}

func intParam(params map[string]any, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, errParameters("missing '" + key + "' parameter")
	}
	f, ok := v.(float64)
	if !ok {
		return 0, errParameters("'" + key + "' must be a number")
	}
	return int(f), nil
}

// channelParam extracts an 8-bit channel value (0-255).
func channelParam(params map[string]any, key string) (uint8, error) {
	n, err := intParam(params, key)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 255 {
		return 0, errParameters(fmt.Sprintf("'%s' must be 0-255, got %d", key, n))
	}
	return uint8(n), nil
}

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", errParameters("missing '" + key + "' parameter")
	}
	s, ok := v.(string)
	if !ok {
		return "", errParameters("'" + key + "' must be a string")
	}
	return s, nil
}

func rgbParam(params map[string]any) ([3]uint8, error) {
	v, ok := params["rgb"]
	if !ok {
		return [3]uint8{}, errParameters("missing 'rgb' parameter")
	}
	list, ok := v.([]any)
	if !ok || len(list) != 3 {
		return [3]uint8{}, errParameters("'rgb' must be a three-element array")
	}

	var rgb [3]uint8
	for i, item := range list {
		f, ok := item.(float64)
		if !ok || f < 0 || f > 255 {
			return [3]uint8{}, errParameters("'rgb' components must be numbers 0-255")
		}
		rgb[i] = uint8(f)
	}
	return rgb, nil
}
