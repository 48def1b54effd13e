package wled

import (
	"fmt"
	"time"
)

// Segment capability bits reported in the wire "lc" field.
const (
	capRGB   = 1 // segment bus drives RGB channels
	capWhite = 2 // segment bus has a dedicated white channel
	capCCT   = 4 // segment bus has a tunable-white (CCT) channel
)

// channelMax is the upper bound of the device's 8-bit value channels
// (brightness, color components, the CCT channel).
const channelMax = 255

// Snapshot is one consistent read of device state.
//
// Snapshots are immutable values: produced by the client (one per poll,
// command response, or push frame), folded into the state mirror, and
// discarded. The Timestamp is the client-side receive time and is strictly
// increasing across successful calls on one client.
type Snapshot struct {
	// Power is the master on/off state.
	Power bool

	// Brightness is the master brightness channel (0-255).
	Brightness uint8

	// Segment is the primary segment's state.
	Segment SegmentState

	// PresetID is the active preset slot, or -1 when no preset is active.
	PresetID int

	// Timestamp is when the client received this state.
	Timestamp time.Time
}

// SegmentState is the decoded state of one LED segment.
//
// The firmware reports which channel currently drives the output through
// field presence: "col" is present while the RGB channels drive the segment,
// "cct" while the tunable-white channel does. RGBActive/CCTActive mirror
// that. Transitional or buggy firmware can report both or neither; the
// capability translator resolves that case, not this package.
type SegmentState struct {
	On         bool
	Brightness uint8

	// Color is the primary color. Only meaningful when RGBActive.
	Color [3]uint8

	// RGBActive reports whether the RGB channels drive the output.
	RGBActive bool

	// CCT is the tunable-white channel value (0 = warmest, 255 = coldest).
	// Only meaningful when CCTActive.
	CCT uint8

	// CCTActive reports whether the CCT channel drives the output.
	CCTActive bool

	// EffectIndex is the running effect's index in the effect catalog.
	EffectIndex int

	// Speed and Intensity are the effect tuning channels (0-255).
	Speed     uint8
	Intensity uint8
}

// Info describes the device and its capabilities.
// Produced from /json/info; consumed as the capability descriptor when the
// adapter is constructed.
type Info struct {
	Name        string
	Version     string
	MAC         string
	LEDCount    int
	SupportsCCT bool
	SupportsRGB bool
}

// Preset is a device-persisted saved configuration.
type Preset struct {
	Name string
}

// StateRequest is a native command field set for POST /json/state.
//
// Nil pointer fields are omitted from the wire and leave the corresponding
// device channel untouched. The encoding rules for clearing a channel:
//   - CCT set to -1 releases the tunable-white channel
//   - Col pointing at an empty slice releases the RGB channels
type StateRequest struct {
	On         *bool            `json:"on,omitempty"`
	Brightness *uint8           `json:"bri,omitempty"`
	Transition *int             `json:"transition,omitempty"`
	Preset     *int             `json:"ps,omitempty"`
	Segments   []SegmentRequest `json:"seg,omitempty"`
	Reboot     bool             `json:"rb,omitempty"`

	// Verbose asks the firmware to answer with the full resulting state
	// instead of a bare acknowledgement. The client always sets it so every
	// write doubles as a confirming read.
	Verbose bool `json:"v,omitempty"`
}

// SegmentRequest addresses one segment within a StateRequest.
type SegmentRequest struct {
	ID         int          `json:"id"`
	On         *bool        `json:"on,omitempty"`
	Brightness *uint8       `json:"bri,omitempty"`
	Color      *[][3]uint8  `json:"col,omitempty"`
	CCT        *int         `json:"cct,omitempty"`
	Effect     *int         `json:"fx,omitempty"`
	Speed      *uint8       `json:"sx,omitempty"`
	Intensity  *uint8       `json:"ix,omitempty"`
}

// Wire types. These mirror the firmware's JSON schema; pointers distinguish
// absent fields from zero values during structural validation.

type stateWire struct {
	On       *bool         `json:"on"`
	Bri      *int          `json:"bri"`
	Preset   *int          `json:"ps"`
	Segments []segmentWire `json:"seg"`
}

type segmentWire struct {
	ID        *int    `json:"id"`
	On        *bool   `json:"on"`
	Bri       *int    `json:"bri"`
	Col       [][]int `json:"col"`
	CCT       *int    `json:"cct"`
	Effect    *int    `json:"fx"`
	Speed     *int    `json:"sx"`
	Intensity *int    `json:"ix"`
	Caps      *int    `json:"lc"`
}

type infoWire struct {
	Name string   `json:"name"`
	Ver  string   `json:"ver"`
	MAC  string   `json:"mac"`
	Leds ledsWire `json:"leds"`
}

type ledsWire struct {
	Count int  `json:"count"`
	CCT   bool `json:"cct"`
	Caps  *int `json:"lc"`
}

// documentWire is the combined GET /json response.
type documentWire struct {
	State *stateWire `json:"state"`
	Info  *infoWire  `json:"info"`
}

// pushWire is one WebSocket push frame. The firmware sends the same
// state/info document it serves over HTTP.
type pushWire struct {
	State *stateWire `json:"state"`
}

type presetWire struct {
	Name string `json:"n"`
}

// decodeState validates a wire state and converts it into a Snapshot.
// The timestamp is stamped by the caller (the client), not here.
//
// Validation is structural: required fields must be present and ranges must
// hold. Anything else is the translator's business.
func decodeState(w *stateWire) (Snapshot, error) {
	if w == nil {
		return Snapshot{}, fmt.Errorf("%w: missing state object", ErrMalformed)
	}
	if w.On == nil || w.Bri == nil {
		return Snapshot{}, fmt.Errorf("%w: state missing on/bri fields", ErrMalformed)
	}
	if *w.Bri < 0 || *w.Bri > channelMax {
		return Snapshot{}, fmt.Errorf("%w: brightness %d out of range", ErrMalformed, *w.Bri)
	}
	if len(w.Segments) == 0 {
		return Snapshot{}, fmt.Errorf("%w: state has no segments", ErrMalformed)
	}

	seg, err := decodeSegment(w.Segments[0])
	if err != nil {
		return Snapshot{}, err
	}

	preset := -1
	if w.Preset != nil && *w.Preset > 0 {
		preset = *w.Preset
	}

	return Snapshot{
		Power:      *w.On,
		Brightness: uint8(*w.Bri),
		Segment:    seg,
		PresetID:   preset,
	}, nil
}

// decodeSegment validates one wire segment.
func decodeSegment(w segmentWire) (SegmentState, error) {
	if w.On == nil || w.Bri == nil || w.Effect == nil {
		return SegmentState{}, fmt.Errorf("%w: segment missing on/bri/fx fields", ErrMalformed)
	}
	if *w.Bri < 0 || *w.Bri > channelMax {
		return SegmentState{}, fmt.Errorf("%w: segment brightness %d out of range", ErrMalformed, *w.Bri)
	}
	if *w.Effect < 0 {
		return SegmentState{}, fmt.Errorf("%w: negative effect index %d", ErrMalformed, *w.Effect)
	}

	seg := SegmentState{
		On:          *w.On,
		Brightness:  uint8(*w.Bri),
		EffectIndex: *w.Effect,
	}

	if w.Speed != nil {
		if *w.Speed < 0 || *w.Speed > channelMax {
			return SegmentState{}, fmt.Errorf("%w: effect speed %d out of range", ErrMalformed, *w.Speed)
		}
		seg.Speed = uint8(*w.Speed)
	}
	if w.Intensity != nil {
		if *w.Intensity < 0 || *w.Intensity > channelMax {
			return SegmentState{}, fmt.Errorf("%w: effect intensity %d out of range", ErrMalformed, *w.Intensity)
		}
		seg.Intensity = uint8(*w.Intensity)
	}

	// RGB channel: active while the firmware includes a non-empty primary color.
	if len(w.Col) > 0 {
		primary := w.Col[0]
		if len(primary) < 3 {
			return SegmentState{}, fmt.Errorf("%w: primary color has %d components", ErrMalformed, len(primary))
		}
		for _, v := range primary[:3] {
			if v < 0 || v > channelMax {
				return SegmentState{}, fmt.Errorf("%w: color component %d out of range", ErrMalformed, v)
			}
		}
		seg.Color = [3]uint8{uint8(primary[0]), uint8(primary[1]), uint8(primary[2])}
		seg.RGBActive = true
	}

	// CCT channel: active while the firmware includes the cct field.
	if w.CCT != nil {
		if *w.CCT < 0 || *w.CCT > channelMax {
			return SegmentState{}, fmt.Errorf("%w: cct value %d out of range", ErrMalformed, *w.CCT)
		}
		seg.CCT = uint8(*w.CCT)
		seg.CCTActive = true
	}

	return seg, nil
}

// decodeInfo validates wire info and converts it into an Info.
func decodeInfo(w *infoWire) (Info, error) {
	if w == nil {
		return Info{}, fmt.Errorf("%w: missing info object", ErrMalformed)
	}
	if w.MAC == "" {
		return Info{}, fmt.Errorf("%w: info missing mac address", ErrMalformed)
	}

	info := Info{
		Name:        w.Name,
		Version:     w.Ver,
		MAC:         w.MAC,
		LEDCount:    w.Leds.Count,
		SupportsCCT: w.Leds.CCT,
		SupportsRGB: true,
	}

	// Newer firmware reports a combined capability mask; prefer it when present.
	if w.Leds.Caps != nil {
		info.SupportsRGB = *w.Leds.Caps&capRGB != 0
		info.SupportsCCT = info.SupportsCCT || *w.Leds.Caps&capCCT != 0
	}

	return info, nil
}
