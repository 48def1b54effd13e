package light

import (
	"errors"
	"testing"

	"github.com/wledjoy/wledbridge/internal/wled"
)

func testPresets() map[int]wled.Preset {
	return map[int]wled.Preset{
		3: {Name: "Movie Night"},
		1: {Name: "Sunrise"},
		7: {Name: "Party"},
	}
}

func testEffects() []string {
	return []string{"Solid", "Blink", "Breathe", "Rainbow"}
}

func TestUnifyOrderAndCount(t *testing.T) {
	c := Unify(testEffects(), testPresets())

	entries := c.Entries()
	if len(entries) != 7 {
		t.Fatalf("got %d entries, want 7", len(entries))
	}

	// Presets first, sorted by slot.
	wantOrder := []string{"Sunrise", "Movie Night", "Party", "Solid", "Blink", "Breathe", "Rainbow"}
	for i, want := range wantOrder {
		if entries[i].Name != want {
			t.Errorf("entry %d = %q, want %q", i, entries[i].Name, want)
		}
	}
	for i, e := range entries {
		wantOrigin := OriginPreset
		if i >= 3 {
			wantOrigin = OriginEffect
		}
		if e.Origin != wantOrigin {
			t.Errorf("entry %d origin = %s, want %s", i, e.Origin, wantOrigin)
		}
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		if seen[e.ID] {
			t.Errorf("duplicate identifier %q", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestUnifyCollisions(t *testing.T) {
	t.Run("cross-origin collision gets origin prefix", func(t *testing.T) {
		c := Unify([]string{"Sunrise"}, map[int]wled.Preset{1: {Name: "Sunrise"}})

		entries := c.Entries()
		if len(entries) != 2 {
			t.Fatalf("got %d entries, want 2", len(entries))
		}
		if entries[0].ID != "preset: Sunrise" {
			t.Errorf("preset id = %q", entries[0].ID)
		}
		if entries[1].ID != "effect: Sunrise" {
			t.Errorf("effect id = %q", entries[1].ID)
		}
	})

	t.Run("same-origin collision falls back to native index", func(t *testing.T) {
		c := Unify(nil, map[int]wled.Preset{
			1: {Name: "Scene"},
			2: {Name: "Scene"},
		})

		entries := c.Entries()
		if entries[0].ID != "preset: Scene" {
			t.Errorf("first id = %q", entries[0].ID)
		}
		if entries[1].ID != "preset: Scene (2)" {
			t.Errorf("second id = %q", entries[1].ID)
		}
	})
}

func TestResolve(t *testing.T) {
	c := Unify(testEffects(), testPresets())

	t.Run("preset routes to slot", func(t *testing.T) {
		entry, err := c.Resolve("Movie Night")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if entry.Origin != OriginPreset || entry.NativeIndex != 3 {
			t.Errorf("entry = %+v, want preset slot 3", entry)
		}
	})

	t.Run("effect routes to index", func(t *testing.T) {
		entry, err := c.Resolve("Breathe")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if entry.Origin != OriginEffect || entry.NativeIndex != 2 {
			t.Errorf("entry = %+v, want effect index 2", entry)
		}
	})

	t.Run("unknown identifier", func(t *testing.T) {
		before := c.Entries()
		_, err := c.Resolve("No Such Thing")
		if !errors.Is(err, ErrUnknownIdentifier) {
			t.Fatalf("error = %v, want ErrUnknownIdentifier", err)
		}
		after := c.Entries()
		if len(before) != len(after) {
			t.Error("failed resolution mutated the catalog")
		}
	})
}

func TestChecksum(t *testing.T) {
	a := Unify(testEffects(), testPresets())
	b := Unify(testEffects(), testPresets())
	if a.Checksum() != b.Checksum() {
		t.Error("identical catalogs hash differently")
	}

	renamed := testPresets()
	renamed[3] = wled.Preset{Name: "Cinema"}
	c := Unify(testEffects(), renamed)
	if c.Checksum() == a.Checksum() {
		t.Error("renamed entry did not change checksum")
	}
	if c.Len() != a.Len() {
		t.Error("rename changed length")
	}

	d := Unify(testEffects()[:2], testPresets())
	if d.Len() == a.Len() {
		t.Error("shortened effect list kept length")
	}
}

func TestEntryLookups(t *testing.T) {
	c := Unify(testEffects(), testPresets())

	if entry, ok := c.EntryForPreset(7); !ok || entry.Name != "Party" {
		t.Errorf("EntryForPreset(7) = %+v, %v", entry, ok)
	}
	if _, ok := c.EntryForPreset(99); ok {
		t.Error("EntryForPreset(99) found a ghost")
	}
	if entry, ok := c.EntryForEffect(0); !ok || entry.Name != "Solid" {
		t.Errorf("EntryForEffect(0) = %+v, %v", entry, ok)
	}
	if _, ok := c.EntryForEffect(42); ok {
		t.Error("EntryForEffect(42) found a ghost")
	}
}
