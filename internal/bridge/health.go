package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the publishing surface the health reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporter publishes periodic bridge health messages.
//
// Thread Safety: all methods are safe for concurrent use.
type HealthReporter struct {
	instanceID string
	version    string
	topic      string
	startTime  time.Time
	interval   time.Duration
	publisher  HealthPublisher

	// deviceStats reports (managed, available) device counts on demand.
	deviceStats func() (int, int)

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// HealthReporterConfig holds the reporter settings.
type HealthReporterConfig struct {
	InstanceID string
	Version    string

	// Topic is the health topic to publish on.
	Topic string

	// Interval between reports. Default 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher

	// DeviceStats reports (managed, available) counts. Required.
	DeviceStats func() (managed, available int)

	Logger Logger
}

// NewHealthReporter creates a reporter. Call Start to begin publishing.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &HealthReporter{
		instanceID:  cfg.InstanceID,
		version:     cfg.Version,
		topic:       cfg.Topic,
		startTime:   time.Now(),
		interval:    interval,
		publisher:   cfg.Publisher,
		deviceStats: cfg.DeviceStats,
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop halts reporting and publishes a final "stopping" status. Safe to call
// more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		if err := h.publishStatus(HealthStopping, "bridge shutting down"); err != nil {
			h.logger.Warn("failed to publish stopping status", "error", err)
		}
	})
}

// PublishStarting publishes a "starting" status during initialization.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately, outside the ticker
// cadence. Useful after availability transitions.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Warn("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Warn("failed to publish health", "error", err)
			}
		}
	}
}

// determineStatus evaluates current bridge health: degraded when the broker
// link is down or any managed device is unavailable, healthy otherwise.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "mqtt disconnected"
	}

	managed, available := h.deviceStats()
	if available < managed {
		return HealthDegraded, "one or more devices unavailable"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	managed, available := h.deviceStats()

	msg := HealthMessage{
		Bridge:           h.instanceID,
		Timestamp:        time.Now().UTC(),
		Status:           status,
		Version:          h.version,
		UptimeSeconds:    int64(time.Since(h.startTime).Seconds()),
		DevicesManaged:   managed,
		DevicesAvailable: available,
		Reason:           reason,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}
