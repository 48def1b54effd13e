package light

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wledjoy/wledbridge/internal/wled"
)

// DeviceClient is the device transport the loop drives. *wled.Client
// satisfies it; tests substitute a scripted double.
type DeviceClient interface {
	Read(ctx context.Context) (wled.Snapshot, error)
	Write(ctx context.Context, req wled.StateRequest) (wled.Snapshot, error)
	Effects(ctx context.Context) ([]string, error)
	Presets(ctx context.Context) (map[int]wled.Preset, error)
	Restart(ctx context.Context) error
}

// Logger receives loop events. *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// State is the loop's published view: what the platform sees for one device.
type State struct {
	View      View
	Available bool

	// Entries is the current unified catalog.
	Entries []Entry

	// CatalogChecksum identifies the catalog build the entries came from.
	CatalogChecksum uint64

	// Diagnostics.
	Generation uint64
	Rejected   uint64
	LastRead   time.Time
	HasState   bool
}

// LoopConfig carries the per-device loop settings.
type LoopConfig struct {
	DeviceID             string
	PollInterval         time.Duration
	CatalogInterval      time.Duration
	Timeout              time.Duration
	UnreachableThreshold int

	// Optimistic makes command operations return as soon as the work is
	// queued, with the projected result already visible in the published
	// state. When false, operations block until the device confirms.
	Optimistic bool
}

// Loop is the per-device synchronization loop.
//
// One goroutine (Run) owns all device I/O, the mirror, the catalog, and the
// pending-command overlay. Operations from other goroutines are serialized
// through a request channel, so at most one device request is ever
// outstanding and snapshots reach the mirror in receive order.
//
// Thread Safety: all exported methods are safe for concurrent use. State()
// never blocks on device I/O.
type Loop struct {
	cfg        LoopConfig
	client     DeviceClient
	translator *Translator
	mirror     *Mirror
	logger     Logger

	// push delivers device-initiated snapshots (WebSocket frames). Optional.
	push <-chan wled.Snapshot

	requests chan command
	done     chan struct{}

	// onUpdate is invoked from the loop goroutine after every published
	// state change. Optional.
	onUpdate func(State)

	// onPoll observes poll latency for telemetry. Optional.
	onPoll func(latency time.Duration, ok bool)

	// Loop-goroutine-confined state.
	catalog   *Catalog
	pending   []pendingCommand
	pendingID uint64
	failures  int
	available bool

	mu   sync.RWMutex
	last State
}

// command is one unit of work executed on the loop goroutine.
type command struct {
	name string
	run  func(ctx context.Context) error
	resp chan error

	// blocking forces a synchronous result even in optimistic mode. Used
	// for operations whose errors indicate caller bugs rather than
	// transient device trouble.
	blocking bool
}

// pendingCommand is an optimistic projection awaiting device confirmation.
type pendingCommand struct {
	id       uint64
	issuedAt time.Time
	project  func(*View)
}

// NewLoop creates a loop for one device. onUpdate, push, and logger may be
// nil; a nil logger discards events.
func NewLoop(cfg LoopConfig, client DeviceClient, translator *Translator, opts ...LoopOption) *Loop {
	if cfg.UnreachableThreshold <= 0 {
		cfg.UnreachableThreshold = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	l := &Loop{
		cfg:        cfg,
		client:     client,
		translator: translator,
		mirror:     NewMirror(),
		logger:     nopLogger{},
		requests:   make(chan command),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoopOption configures optional loop collaborators.
type LoopOption func(*Loop)

// WithLogger attaches a logger.
func WithLogger(logger Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPushSource attaches a channel of device-initiated snapshots.
func WithPushSource(push <-chan wled.Snapshot) LoopOption {
	return func(l *Loop) { l.push = push }
}

// WithUpdateHandler attaches a callback invoked on every published state
// change. It runs on the loop goroutine and must not block.
func WithUpdateHandler(fn func(State)) LoopOption {
	return func(l *Loop) { l.onUpdate = fn }
}

// WithPollObserver attaches a callback reporting the duration and outcome of
// every poll cycle. It runs on the loop goroutine and must not block.
func WithPollObserver(fn func(latency time.Duration, ok bool)) LoopOption {
	return func(l *Loop) { l.onPoll = fn }
}

// Run drives the loop until ctx is cancelled. In-flight work is abandoned on
// cancellation; late results are discarded, never applied.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	// First contact: catalog, then state. Failures here are ordinary
	// unreachable events; the poll ticker retries.
	l.refreshCatalog(ctx)
	l.refresh(ctx)

	poll := time.NewTicker(l.cfg.PollInterval)
	defer poll.Stop()
	catalog := time.NewTicker(l.cfg.CatalogInterval)
	defer catalog.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-poll.C:
			l.refresh(ctx)

		case <-catalog.C:
			l.refreshCatalog(ctx)

		case snap, ok := <-l.push:
			if !ok {
				l.push = nil
				continue
			}
			l.reconcile(ctx, snap)

		case cmd := <-l.requests:
			l.logger.Debug("executing operation",
				"device_id", l.cfg.DeviceID,
				"op", cmd.name,
			)
			err := cmd.run(ctx)
			if cmd.resp != nil {
				cmd.resp <- err
			}
		}
	}
}

// State returns the latest published state. Safe before Run and after
// shutdown; the zero value reports unavailable with no snapshot.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// SetPower requests master power on/off.
func (l *Loop) SetPower(ctx context.Context, on bool) error {
	return l.write(ctx, "set_power", l.translator.EncodePower(on), func(v *View) {
		v.Power = on
	})
}

// SetBrightness requests the given merged brightness.
func (l *Loop) SetBrightness(ctx context.Context, bri uint8) error {
	return l.write(ctx, "set_brightness", l.translator.EncodeBrightness(bri), func(v *View) {
		v.Brightness = bri
	})
}

// SetColor requests an RGB color. The device leaves tunable-white mode.
func (l *Loop) SetColor(ctx context.Context, rgb [3]uint8) error {
	return l.write(ctx, "set_color", l.translator.EncodeColor(rgb), func(v *View) {
		v.Mode = ModeRGB
		v.RGB = rgb
		v.ColorTempKelvin = 0
		v.ColorTempMired = 0
	})
}

// SetColorTemperature requests a color temperature in kelvin.
func (l *Loop) SetColorTemperature(ctx context.Context, kelvin int) error {
	return l.write(ctx, "set_color_temp", l.translator.EncodeColorTemperature(kelvin),
		l.projectColorTemp(kelvin))
}

// SetColorTemperatureMired requests a color temperature in mired.
func (l *Loop) SetColorTemperatureMired(ctx context.Context, mired int) error {
	return l.SetColorTemperature(ctx, miredToKelvin(mired))
}

// SetEffectSpeed requests the given effect speed.
func (l *Loop) SetEffectSpeed(ctx context.Context, speed uint8) error {
	return l.write(ctx, "set_speed", l.translator.EncodeSpeed(speed), func(v *View) {
		v.Speed = speed
	})
}

// SetEffectIntensity requests the given effect intensity.
func (l *Loop) SetEffectIntensity(ctx context.Context, intensity uint8) error {
	return l.write(ctx, "set_intensity", l.translator.EncodeIntensity(intensity), func(v *View) {
		v.Intensity = intensity
	})
}

// SelectEntry activates a unified-catalog entry by identifier. Unknown
// identifiers fail with ErrUnknownIdentifier immediately; nothing is sent
// to the device and no state changes.
func (l *Loop) SelectEntry(ctx context.Context, id string) error {
	return l.enqueue(ctx, command{
		name:     "select",
		blocking: true,
		run: func(ctx context.Context) error {
			if l.catalog == nil {
				return selectionError(id)
			}
			entry, err := l.catalog.Resolve(id)
			if err != nil {
				return err
			}

			var req wled.StateRequest
			switch entry.Origin {
			case OriginPreset:
				req = l.translator.EncodePreset(entry.NativeIndex)
			case OriginEffect:
				req = l.translator.EncodeEffect(entry.NativeIndex)
			}
			return l.performWrite(ctx, req, func(v *View) {
				v.Selected = entry.ID
				if entry.Origin == OriginPreset {
					v.PresetID = entry.NativeIndex
				} else {
					v.EffectIndex = entry.NativeIndex
					v.PresetID = -1
				}
			})
		},
	})
}

// Restart asks the device to reboot.
func (l *Loop) Restart(ctx context.Context) error {
	return l.enqueue(ctx, command{
		name: "restart",
		run: func(ctx context.Context) error {
			wctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
			defer cancel()
			if err := l.client.Restart(wctx); err != nil {
				l.recordFailure(err)
				return err
			}
			l.logger.Info("device restart requested", "device_id", l.cfg.DeviceID)
			return nil
		},
	})
}

// Refresh forces an immediate poll outside the ticker cadence.
func (l *Loop) Refresh(ctx context.Context) error {
	return l.enqueue(ctx, command{
		name: "refresh",
		run: func(ctx context.Context) error {
			return l.refresh(ctx)
		},
	})
}

// projectColorTemp builds the optimistic projection for a temperature
// command, mirroring what Decode will report once the device confirms.
func (l *Loop) projectColorTemp(kelvin int) func(*View) {
	kelvin = l.translator.clampKelvin(kelvin)
	caps := l.translator.Capabilities()
	if !caps.SupportsCCT {
		rgb := kelvinToRGB(kelvin)
		return func(v *View) {
			v.Mode = ModeRGB
			v.RGB = rgb
			v.ColorTempKelvin = 0
			v.ColorTempMired = 0
		}
	}
	// Round-trip through the channel so the projection matches the readback.
	confirmed := l.translator.cctToKelvin(l.translator.kelvinToCCT(kelvin))
	return func(v *View) {
		v.Mode = ModeColorTemp
		v.ColorTempKelvin = confirmed
		v.ColorTempMired = kelvinToMired(confirmed)
		v.RGB = [3]uint8{}
	}
}

// write enqueues a device write with its optimistic projection.
func (l *Loop) write(ctx context.Context, name string, req wled.StateRequest, project func(*View)) error {
	return l.enqueue(ctx, command{
		name: name,
		run: func(ctx context.Context) error {
			return l.performWrite(ctx, req, project)
		},
	})
}

// enqueue hands a command to the loop goroutine. In optimistic mode it
// returns as soon as the loop accepts the work; otherwise it waits for the
// result.
func (l *Loop) enqueue(ctx context.Context, cmd command) error {
	if !l.cfg.Optimistic || cmd.blocking {
		cmd.resp = make(chan error, 1)
	}

	select {
	case l.requests <- cmd:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	if cmd.resp == nil {
		return nil
	}
	select {
	case err := <-cmd.resp:
		return err
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// performWrite runs on the loop goroutine: register the projection, issue
// the device write, fold the confirming snapshot back in.
//
// The projection is published before the network call so rapid repeated
// commands never visually bounce back to pre-command state while a
// confirmation is in flight. A failed write withdraws its projection.
func (l *Loop) performWrite(ctx context.Context, req wled.StateRequest, project func(*View)) error {
	var id uint64
	if project != nil {
		l.pendingID++
		id = l.pendingID
		l.pending = append(l.pending, pendingCommand{
			id:       id,
			issuedAt: time.Now(),
			project:  project,
		})
		l.publish()
	}

	wctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	snap, err := l.client.Write(wctx, req)
	if err != nil {
		if project != nil {
			l.withdrawPending(id)
			l.publish()
		}
		l.recordFailure(err)
		return err
	}

	l.recordSuccess()
	l.applySnapshot(ctx, snap)
	return nil
}

// refresh performs one poll cycle.
func (l *Loop) refresh(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	start := time.Now()
	snap, err := l.client.Read(rctx)
	if l.onPoll != nil {
		l.onPoll(time.Since(start), err == nil)
	}
	if err != nil {
		l.recordFailure(err)
		return err
	}

	l.recordSuccess()
	l.applySnapshot(ctx, snap)
	return nil
}

// reconcile folds a push-delivered snapshot in. Push frames do not touch the
// failure counter: the poll path owns reachability.
func (l *Loop) reconcile(ctx context.Context, snap wled.Snapshot) {
	l.applySnapshot(ctx, snap)
}

// applySnapshot runs the reconciliation step: mirror update, pending-command
// clearing, catalog staleness check, publication.
func (l *Loop) applySnapshot(ctx context.Context, snap wled.Snapshot) {
	if !l.mirror.Apply(snap) {
		l.logger.Debug("rejected stale snapshot",
			"device_id", l.cfg.DeviceID,
			"snapshot_ts", snap.Timestamp,
		)
		// View and overlay are untouched; republish so the reject counter
		// stays visible in diagnostics.
		l.publish()
		return
	}

	l.clearConfirmedPending(snap.Timestamp)

	// A snapshot referencing a preset or effect the catalog does not know
	// means the device's lists changed underneath us.
	if l.catalogStale(snap) {
		l.refreshCatalog(ctx)
	}

	l.publish()
}

// clearConfirmedPending drops projections confirmed or superseded by an
// accepted snapshot at or after their issuance time.
func (l *Loop) clearConfirmedPending(ts time.Time) {
	kept := l.pending[:0]
	for _, p := range l.pending {
		if ts.Before(p.issuedAt) {
			kept = append(kept, p)
		}
	}
	l.pending = kept
}

func (l *Loop) withdrawPending(id uint64) {
	kept := l.pending[:0]
	for _, p := range l.pending {
		if p.id != id {
			kept = append(kept, p)
		}
	}
	l.pending = kept
}

// catalogStale reports whether the snapshot references entries outside the
// current catalog build.
func (l *Loop) catalogStale(snap wled.Snapshot) bool {
	if l.catalog == nil {
		return true
	}
	if snap.PresetID > 0 {
		if _, ok := l.catalog.EntryForPreset(snap.PresetID); !ok {
			return true
		}
	}
	if _, ok := l.catalog.EntryForEffect(snap.Segment.EffectIndex); !ok {
		return true
	}
	return false
}

// refreshCatalog fetches both device lists and swaps in a full rebuild when
// length or checksum changed. The catalog is never patched incrementally.
func (l *Loop) refreshCatalog(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	effects, err := l.client.Effects(cctx)
	if err != nil {
		l.recordFailure(err)
		return
	}
	presets, err := l.client.Presets(cctx)
	if err != nil {
		l.recordFailure(err)
		return
	}
	l.recordSuccess()

	rebuilt := Unify(effects, presets)
	if l.catalog != nil &&
		l.catalog.Len() == rebuilt.Len() &&
		l.catalog.Checksum() == rebuilt.Checksum() {
		return
	}

	l.catalog = rebuilt
	l.logger.Info("selectable catalog rebuilt",
		"device_id", l.cfg.DeviceID,
		"entries", rebuilt.Len(),
		"checksum", rebuilt.Checksum(),
	)
	l.publish()
}

// recordFailure counts consecutive unreachable results and flips
// availability once the threshold is hit. Malformed responses are logged
// and dropped without touching the counter: the device answered, it is
// reachable, just confused.
func (l *Loop) recordFailure(err error) {
	if errors.Is(err, wled.ErrMalformed) {
		l.logger.Warn("dropping malformed device response",
			"device_id", l.cfg.DeviceID,
			"error", err,
		)
		return
	}

	l.failures++
	l.logger.Warn("device request failed",
		"device_id", l.cfg.DeviceID,
		"consecutive_failures", l.failures,
		"error", err,
	)

	if l.available && l.failures >= l.cfg.UnreachableThreshold {
		l.available = false
		l.logger.Error("device marked unavailable",
			"device_id", l.cfg.DeviceID,
			"threshold", l.cfg.UnreachableThreshold,
		)
		l.publish()
	}
}

// recordSuccess resets the failure counter and self-heals availability.
func (l *Loop) recordSuccess() {
	l.failures = 0
	if !l.available {
		l.available = true
		l.logger.Info("device available", "device_id", l.cfg.DeviceID)
		l.publish()
	}
}

// publish recomputes the published state from the mirror, the pending
// overlay, and the catalog, then stores it and notifies the handler.
func (l *Loop) publish() {
	ms := l.mirror.Current()

	state := State{
		Available:  l.available,
		Generation: ms.Generation,
		Rejected:   ms.Rejected,
		LastRead:   ms.LastRead,
		HasState:   ms.HasState,
	}

	if ms.HasState {
		view, warning := l.translator.Decode(ms.Snapshot)
		if warning != nil {
			l.logger.Warn("inconsistent color mode in snapshot",
				"device_id", l.cfg.DeviceID,
				"detail", warning.String(),
			)
		}
		if l.catalog != nil {
			view.Selected = l.selectedEntry(ms.Snapshot)
		}
		for _, p := range l.pending {
			p.project(&view)
		}
		state.View = view
	}

	if l.catalog != nil {
		state.Entries = l.catalog.Entries()
		state.CatalogChecksum = l.catalog.Checksum()
	}

	l.mu.Lock()
	l.last = state
	l.mu.Unlock()

	if l.onUpdate != nil {
		l.onUpdate(state)
	}
}

// selectedEntry maps the snapshot's active preset/effect to a catalog
// identifier. An active preset wins over the running effect, matching how
// the device itself reports a preset as the current "mode".
func (l *Loop) selectedEntry(snap wled.Snapshot) string {
	if snap.PresetID > 0 {
		if entry, ok := l.catalog.EntryForPreset(snap.PresetID); ok {
			return entry.ID
		}
	}
	if entry, ok := l.catalog.EntryForEffect(snap.Segment.EffectIndex); ok {
		return entry.ID
	}
	return ""
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
