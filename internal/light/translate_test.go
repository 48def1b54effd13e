package light

import (
	"testing"
	"time"

	"github.com/wledjoy/wledbridge/internal/wled"
)

func cctCapable() Capabilities {
	return Capabilities{SupportsRGB: true, SupportsCCT: true}
}

func rgbOnly() Capabilities {
	return Capabilities{SupportsRGB: true}
}

// confirm simulates the device applying an encoded request and reporting
// back, so encode/decode round trips can be tested without a device.
func confirm(req wled.StateRequest, prev wled.Snapshot) wled.Snapshot {
	snap := prev
	snap.Timestamp = prev.Timestamp.Add(time.Second)

	if req.On != nil {
		snap.Power = *req.On
	}
	if req.Brightness != nil {
		snap.Brightness = *req.Brightness
	}
	for _, seg := range req.Segments {
		if seg.On != nil {
			snap.Segment.On = *seg.On
		}
		if seg.Brightness != nil {
			snap.Segment.Brightness = *seg.Brightness
		}
		if seg.Effect != nil {
			snap.Segment.EffectIndex = *seg.Effect
		}
		if seg.Speed != nil {
			snap.Segment.Speed = *seg.Speed
		}
		if seg.Intensity != nil {
			snap.Segment.Intensity = *seg.Intensity
		}
		if seg.Color != nil {
			if len(*seg.Color) == 0 {
				snap.Segment.RGBActive = false
				snap.Segment.Color = [3]uint8{}
			} else {
				snap.Segment.RGBActive = true
				snap.Segment.Color = (*seg.Color)[0]
			}
		}
		if seg.CCT != nil {
			if *seg.CCT < 0 {
				snap.Segment.CCTActive = false
				snap.Segment.CCT = 0
			} else {
				snap.Segment.CCTActive = true
				snap.Segment.CCT = uint8(*seg.CCT)
			}
		}
	}
	return snap
}

func baseSnapshot() wled.Snapshot {
	return wled.Snapshot{
		Power:      true,
		Brightness: 255,
		Segment: wled.SegmentState{
			On:         true,
			Brightness: 255,
			RGBActive:  true,
			Color:      [3]uint8{255, 160, 0},
		},
		PresetID:  -1,
		Timestamp: time.Now(),
	}
}

func TestEncodeDecodeMutualExclusion(t *testing.T) {
	tr := NewTranslator(cctCapable(), false)

	t.Run("rgb command never surfaces color temperature", func(t *testing.T) {
		// Start from tunable-white output.
		snap := baseSnapshot()
		snap.Segment.RGBActive = false
		snap.Segment.CCTActive = true
		snap.Segment.CCT = 200

		after := confirm(tr.EncodeColor([3]uint8{0, 128, 255}), snap)
		view, warning := tr.Decode(after)
		if warning != nil {
			t.Errorf("unexpected warning: %v", warning)
		}
		if view.Mode != ModeRGB {
			t.Fatalf("mode = %s, want rgb", view.Mode)
		}
		if view.ColorTempKelvin != 0 || view.ColorTempMired != 0 {
			t.Errorf("color temperature leaked through: %dK/%d mired",
				view.ColorTempKelvin, view.ColorTempMired)
		}
		if view.RGB != [3]uint8{0, 128, 255} {
			t.Errorf("rgb = %v", view.RGB)
		}
	})

	t.Run("temperature command never surfaces rgb", func(t *testing.T) {
		after := confirm(tr.EncodeColorTemperature(4000), baseSnapshot())
		view, warning := tr.Decode(after)
		if warning != nil {
			t.Errorf("unexpected warning: %v", warning)
		}
		if view.Mode != ModeColorTemp {
			t.Fatalf("mode = %s, want color_temp", view.Mode)
		}
		if view.RGB != [3]uint8{} {
			t.Errorf("rgb leaked through: %v", view.RGB)
		}
	})
}

func TestColorTemperatureRoundTrip(t *testing.T) {
	tr := NewTranslator(cctCapable(), false)

	// 250 mired is 4000 K, which lands on CCT channel value 112 and reads
	// back as 250 mired exactly.
	req := tr.EncodeColorTemperatureMired(250)
	if len(req.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(req.Segments))
	}
	seg := req.Segments[0]
	if seg.CCT == nil || *seg.CCT != 112 {
		t.Fatalf("cct = %v, want 112", seg.CCT)
	}
	if seg.Color == nil || len(*seg.Color) != 0 {
		t.Error("rgb channel not explicitly released")
	}

	after := confirm(req, baseSnapshot())
	view, _ := tr.Decode(after)
	if view.ColorTempMired != 250 {
		t.Errorf("mired = %d, want 250", view.ColorTempMired)
	}
	if view.Mode != ModeColorTemp {
		t.Errorf("mode = %s, want color_temp", view.Mode)
	}
}

func TestDecodeCCTSnapshot(t *testing.T) {
	tr := NewTranslator(cctCapable(), false)

	snap := baseSnapshot()
	snap.Segment.RGBActive = false
	snap.Segment.Color = [3]uint8{}
	snap.Segment.CCTActive = true
	snap.Segment.CCT = 112

	view, warning := tr.Decode(snap)
	if warning != nil {
		t.Errorf("unexpected warning: %v", warning)
	}
	if view.Mode != ModeColorTemp {
		t.Fatalf("mode = %s, want color_temp", view.Mode)
	}
	if view.ColorTempMired != 250 {
		t.Errorf("mired = %d, want 250", view.ColorTempMired)
	}
	if view.ColorTempKelvin != 3998 {
		t.Errorf("kelvin = %d, want 3998", view.ColorTempKelvin)
	}
}

func TestDecodeConflictingFlags(t *testing.T) {
	tests := []struct {
		name     string
		caps     Capabilities
		rgb, cct bool
		wantMode ColorMode
	}{
		{"both active, cct capable", cctCapable(), true, true, ModeColorTemp},
		{"neither active, cct capable", cctCapable(), false, false, ModeColorTemp},
		{"both active, rgb only", rgbOnly(), true, true, ModeRGB},
		{"neither active, rgb only", rgbOnly(), false, false, ModeRGB},
		{"neither active, no color at all", Capabilities{}, false, false, ModeBrightness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTranslator(tt.caps, false)
			snap := baseSnapshot()
			snap.Segment.RGBActive = tt.rgb
			snap.Segment.CCTActive = tt.cct

			view, warning := tr.Decode(snap)
			if warning == nil {
				t.Fatal("expected consistency warning")
			}
			if view.Mode != tt.wantMode {
				t.Errorf("mode = %s, want %s", view.Mode, tt.wantMode)
			}
		})
	}

	t.Run("consistent flags carry no warning", func(t *testing.T) {
		tr := NewTranslator(cctCapable(), false)
		if _, warning := tr.Decode(baseSnapshot()); warning != nil {
			t.Errorf("unexpected warning: %v", warning)
		}
	})
}

func TestBrightnessMerge(t *testing.T) {
	snap := baseSnapshot()
	snap.Brightness = 128
	snap.Segment.Brightness = 255

	t.Run("merged", func(t *testing.T) {
		tr := NewTranslator(cctCapable(), false)
		view, _ := tr.Decode(snap)
		if view.Brightness != 128 {
			t.Errorf("brightness = %d, want 128", view.Brightness)
		}
	})

	t.Run("merged partial", func(t *testing.T) {
		tr := NewTranslator(cctCapable(), false)
		half := snap
		half.Segment.Brightness = 128
		view, _ := tr.Decode(half)
		if view.Brightness != 64 {
			t.Errorf("brightness = %d, want 64", view.Brightness)
		}
	})

	t.Run("separate main light", func(t *testing.T) {
		tr := NewTranslator(cctCapable(), true)
		view, _ := tr.Decode(snap)
		if view.Brightness != 255 {
			t.Errorf("brightness = %d, want segment value 255", view.Brightness)
		}
	})

	t.Run("encode merged pins segment to full", func(t *testing.T) {
		tr := NewTranslator(cctCapable(), false)
		req := tr.EncodeBrightness(128)
		if req.Brightness == nil || *req.Brightness != 128 {
			t.Fatal("master brightness not set")
		}
		if len(req.Segments) != 1 || req.Segments[0].Brightness == nil || *req.Segments[0].Brightness != 255 {
			t.Error("segment brightness not pinned to full")
		}

		view, _ := tr.Decode(confirm(req, baseSnapshot()))
		if view.Brightness != 128 {
			t.Errorf("readback brightness = %d, want 128", view.Brightness)
		}
	})

	t.Run("encode with separate main light moves segment only", func(t *testing.T) {
		tr := NewTranslator(cctCapable(), true)
		req := tr.EncodeBrightness(90)
		if req.Brightness != nil {
			t.Error("master brightness touched")
		}
		if len(req.Segments) != 1 || *req.Segments[0].Brightness != 90 {
			t.Error("segment brightness not set")
		}
	})
}

func TestEncodeColorTemperatureWithoutCCT(t *testing.T) {
	tr := NewTranslator(rgbOnly(), false)

	req := tr.EncodeColorTemperature(2000)
	if len(req.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(req.Segments))
	}
	seg := req.Segments[0]
	if seg.CCT != nil {
		t.Error("cct channel addressed on hardware without one")
	}
	if seg.Color == nil || len(*seg.Color) != 1 {
		t.Fatal("no approximated color set")
	}

	// 2000 K is warm: strongly red, little blue.
	rgb := (*seg.Color)[0]
	if rgb[0] != 255 {
		t.Errorf("red = %d, want 255", rgb[0])
	}
	if rgb[2] > 30 {
		t.Errorf("blue = %d, want near zero for 2000 K", rgb[2])
	}
	if rgb[1] >= rgb[0] || rgb[1] <= rgb[2] {
		t.Errorf("green = %d, want between blue and red", rgb[1])
	}
}

func TestKelvinClamping(t *testing.T) {
	tr := NewTranslator(cctCapable(), false)

	low := tr.EncodeColorTemperature(500)
	if *low.Segments[0].CCT != 0 {
		t.Errorf("below-range kelvin: cct = %d, want 0", *low.Segments[0].CCT)
	}
	high := tr.EncodeColorTemperature(10000)
	if *high.Segments[0].CCT != 255 {
		t.Errorf("above-range kelvin: cct = %d, want 255", *high.Segments[0].CCT)
	}
}

func TestMiredBounds(t *testing.T) {
	tr := NewTranslator(cctCapable(), false)
	if got := tr.MiredMin(); got != 153 {
		t.Errorf("MiredMin = %d, want 153", got)
	}
	if got := tr.MiredMax(); got != 500 {
		t.Errorf("MiredMax = %d, want 500", got)
	}
}

func TestKelvinToRGBEndpoints(t *testing.T) {
	warm := kelvinToRGB(2000)
	if warm[0] != 255 || warm[2] > 30 {
		t.Errorf("2000 K = %v, want warm red", warm)
	}

	// 6600 K sits at the curve's neutral point.
	neutral := kelvinToRGB(6600)
	for i, ch := range neutral {
		if ch < 230 {
			t.Errorf("6600 K channel %d = %d, want near white", i, ch)
		}
	}
}
