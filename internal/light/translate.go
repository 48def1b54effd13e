package light

import (
	"math"

	"github.com/wledjoy/wledbridge/internal/wled"
)

// Default tunable-white range for the linear kelvin↔CCT mapping. The CCT
// channel is 8-bit, so with this span one channel step is just under 18 K.
const (
	DefaultKelvinMin = 2000
	DefaultKelvinMax = 6550
)

// Capabilities describes what the device hardware can render. Supplied at
// construction from the device's info document; the translator never probes.
type Capabilities struct {
	SupportsRGB bool
	SupportsCCT bool

	// KelvinMin/KelvinMax bound the color-temperature range mapped onto the
	// device's 0-255 CCT channel. Zero values fall back to the defaults.
	KelvinMin int
	KelvinMax int
}

// ColorMode identifies which color attribute a view surfaces.
type ColorMode string

const (
	ModeRGB        ColorMode = "rgb"
	ModeColorTemp  ColorMode = "color_temp"
	ModeBrightness ColorMode = "brightness"
)

// View is the platform-facing light state, derived on demand from a
// snapshot. Exactly one of the RGB / color-temperature attribute groups is
// meaningful, selected by Mode; Views are never persisted.
type View struct {
	Power      bool
	Brightness uint8

	Mode ColorMode

	// RGB is meaningful when Mode is ModeRGB.
	RGB [3]uint8

	// ColorTempKelvin and ColorTempMired are meaningful when Mode is
	// ModeColorTemp.
	ColorTempKelvin int
	ColorTempMired  int

	EffectIndex int
	Speed       uint8
	Intensity   uint8

	// PresetID is the active preset slot, -1 when none.
	PresetID int

	// Selected is the unified-catalog identifier of the active entry, empty
	// when the active effect/preset is not in the catalog. Filled by the
	// synchronization loop, not by Decode.
	Selected string
}

// Translator converts platform light commands into native field sets and
// device snapshots into platform views.
//
// All methods are pure: the translator carries only the capability
// descriptor and the brightness-merge setting, both fixed at construction.
type Translator struct {
	caps Capabilities

	// keepMainLight preserves the device's master brightness as a separate
	// control. When false (the default) the master and segment brightness
	// channels are merged into the single surfaced brightness.
	keepMainLight bool
}

// NewTranslator creates a translator for a device with the given
// capabilities.
func NewTranslator(caps Capabilities, keepMainLight bool) *Translator {
	if caps.KelvinMin <= 0 {
		caps.KelvinMin = DefaultKelvinMin
	}
	if caps.KelvinMax <= caps.KelvinMin {
		caps.KelvinMax = DefaultKelvinMax
	}
	return &Translator{caps: caps, keepMainLight: keepMainLight}
}

// Capabilities returns the descriptor the translator was built with.
func (t *Translator) Capabilities() Capabilities {
	return t.caps
}

// MiredMin/MiredMax return the surfaced color-temperature bounds in mired.
func (t *Translator) MiredMin() int { return kelvinToMired(t.caps.KelvinMax) }
func (t *Translator) MiredMax() int { return kelvinToMired(t.caps.KelvinMin) }

// EncodePower builds a master on/off command.
func (t *Translator) EncodePower(on bool) wled.StateRequest {
	return wled.StateRequest{On: &on}
}

// EncodeBrightness builds a brightness command.
//
// In merged-brightness mode the master channel carries the value and the
// segment channel is pinned to full, so the merged readback equals the
// requested value exactly. With a separate main light only the segment
// channel moves.
func (t *Translator) EncodeBrightness(bri uint8) wled.StateRequest {
	if t.keepMainLight {
		return wled.StateRequest{
			Segments: []wled.SegmentRequest{{ID: 0, Brightness: &bri}},
		}
	}
	full := uint8(255)
	return wled.StateRequest{
		Brightness: &bri,
		Segments:   []wled.SegmentRequest{{ID: 0, Brightness: &full}},
	}
}

// EncodeColor builds an RGB color command. The CCT channel is explicitly
// released so the device cannot keep reporting tunable-white output.
func (t *Translator) EncodeColor(rgb [3]uint8) wled.StateRequest {
	col := [][3]uint8{rgb}
	clearCCT := -1
	seg := wled.SegmentRequest{ID: 0, Color: &col}
	if t.caps.SupportsCCT {
		seg.CCT = &clearCCT
	}
	return wled.StateRequest{Segments: []wled.SegmentRequest{seg}}
}

// EncodeColorTemperature builds a color-temperature command from kelvin.
//
// On CCT-capable hardware the temperature is scaled linearly into the
// device's 0-255 tunable-white channel and the RGB channel is explicitly
// released. Hardware without a CCT channel renders the temperature as an
// approximated RGB color instead, so the command still produces sensible
// light rather than failing.
func (t *Translator) EncodeColorTemperature(kelvin int) wled.StateRequest {
	kelvin = t.clampKelvin(kelvin)

	if !t.caps.SupportsCCT {
		return t.EncodeColor(kelvinToRGB(kelvin))
	}

	cct := int(t.kelvinToCCT(kelvin))
	clearRGB := [][3]uint8{}
	return wled.StateRequest{
		Segments: []wled.SegmentRequest{{ID: 0, Color: &clearRGB, CCT: &cct}},
	}
}

// EncodeColorTemperatureMired is EncodeColorTemperature with a mired input.
func (t *Translator) EncodeColorTemperatureMired(mired int) wled.StateRequest {
	return t.EncodeColorTemperature(miredToKelvin(mired))
}

// EncodeEffect builds an effect selection command.
func (t *Translator) EncodeEffect(index int) wled.StateRequest {
	return wled.StateRequest{
		Segments: []wled.SegmentRequest{{ID: 0, Effect: &index}},
	}
}

// EncodePreset builds a preset activation command.
func (t *Translator) EncodePreset(slot int) wled.StateRequest {
	return wled.StateRequest{Preset: &slot}
}

// EncodeSpeed builds an effect-speed command.
func (t *Translator) EncodeSpeed(speed uint8) wled.StateRequest {
	return wled.StateRequest{
		Segments: []wled.SegmentRequest{{ID: 0, Speed: &speed}},
	}
}

// EncodeIntensity builds an effect-intensity command.
func (t *Translator) EncodeIntensity(intensity uint8) wled.StateRequest {
	return wled.StateRequest{
		Segments: []wled.SegmentRequest{{ID: 0, Intensity: &intensity}},
	}
}

// Decode derives the platform view from a snapshot.
//
// Exactly one color attribute group is surfaced. When the snapshot's
// channel-active flags conflict (both set or neither), the returned warning
// is non-nil and the conservative default applies: tunable-white wins on
// CCT-capable hardware, RGB otherwise, brightness-only as the last resort.
func (t *Translator) Decode(snap wled.Snapshot) (View, *ConsistencyWarning) {
	seg := snap.Segment

	view := View{
		Power:       snap.Power && seg.On,
		Brightness:  t.mergedBrightness(snap),
		EffectIndex: seg.EffectIndex,
		Speed:       seg.Speed,
		Intensity:   seg.Intensity,
		PresetID:    snap.PresetID,
	}

	var warning *ConsistencyWarning
	useCCT := seg.CCTActive
	if seg.RGBActive == seg.CCTActive {
		warning = &ConsistencyWarning{RGBActive: seg.RGBActive, CCTActive: seg.CCTActive}
		useCCT = t.caps.SupportsCCT
	}

	switch {
	case useCCT && t.caps.SupportsCCT:
		kelvin := t.cctToKelvin(seg.CCT)
		view.Mode = ModeColorTemp
		view.ColorTempKelvin = kelvin
		view.ColorTempMired = kelvinToMired(kelvin)
	case t.caps.SupportsRGB:
		view.Mode = ModeRGB
		view.RGB = seg.Color
	default:
		view.Mode = ModeBrightness
	}

	return view, warning
}

// mergedBrightness collapses master and segment brightness into one value
// unless the master channel is kept as a separate control.
func (t *Translator) mergedBrightness(snap wled.Snapshot) uint8 {
	if t.keepMainLight {
		return snap.Segment.Brightness
	}
	return uint8(int(snap.Segment.Brightness) * int(snap.Brightness) / 255)
}

func (t *Translator) clampKelvin(kelvin int) int {
	if kelvin < t.caps.KelvinMin {
		return t.caps.KelvinMin
	}
	if kelvin > t.caps.KelvinMax {
		return t.caps.KelvinMax
	}
	return kelvin
}

// kelvinToCCT scales a kelvin value linearly into the 0-255 CCT channel.
func (t *Translator) kelvinToCCT(kelvin int) uint8 {
	kelvin = t.clampKelvin(kelvin)
	span := t.caps.KelvinMax - t.caps.KelvinMin
	return uint8((kelvin - t.caps.KelvinMin) * 255 / span)
}

// cctToKelvin is the inverse mapping, rounded to the nearest kelvin.
func (t *Translator) cctToKelvin(cct uint8) int {
	span := t.caps.KelvinMax - t.caps.KelvinMin
	return t.caps.KelvinMin + (int(cct)*span+127)/255
}

func kelvinToMired(kelvin int) int {
	if kelvin <= 0 {
		return 0
	}
	return int(math.Round(1e6 / float64(kelvin)))
}

func miredToKelvin(mired int) int {
	if mired <= 0 {
		return 0
	}
	return int(math.Round(1e6 / float64(mired)))
}

// kelvinToRGB approximates a black-body color for hardware without a
// tunable-white channel, using Tanner Helland's curve fit. Accurate to a few
// percent between 1000 K and 40000 K, which is far more than the clamped
// input range needs.
func kelvinToRGB(kelvin int) [3]uint8 {
	temp := float64(kelvin) / 100

	var r, g, b float64
	if temp <= 66 {
		r = 255
		g = 99.4708025861*math.Log(temp) - 161.1195681661
	} else {
		r = 329.698727446 * math.Pow(temp-60, -0.1332047592)
		g = 288.1221695283 * math.Pow(temp-60, -0.0755148492)
	}

	switch {
	case temp >= 66:
		b = 255
	case temp <= 19:
		b = 0
	default:
		b = 138.5177312231*math.Log(temp-10) - 305.0447927307
	}

	return [3]uint8{clampChannel(r), clampChannel(g), clampChannel(b)}
}

func clampChannel(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(math.Round(v))
}
