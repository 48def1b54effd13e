package light

import (
	"hash/fnv"
	"strconv"

	"github.com/wledjoy/wledbridge/internal/wled"
)

// Origin tags which device concept a catalog entry selects.
type Origin string

const (
	OriginPreset Origin = "preset"
	OriginEffect Origin = "effect"
)

// Entry is one selectable item in the unified catalog.
type Entry struct {
	// ID is the stable identifier selections use. Unique across both
	// origins within one catalog build.
	ID string

	// Name is the display name as the device reports it.
	Name string

	Origin Origin

	// NativeIndex is the preset slot or effect index the entry routes to.
	NativeIndex int
}

// Catalog is one unified, ordered build of the device's selectable lists:
// presets first (sorted by slot, so user-saved configurations come before
// the firmware's built-ins), then effects in index order.
//
// A catalog is immutable once built. The synchronization loop replaces the
// whole catalog when the device's lists change; entries are never patched in
// place, so an identifier either resolves to exactly what it resolved to at
// build time or fails.
type Catalog struct {
	entries  []Entry
	byID     map[string]int
	byPreset map[int]int
	byEffect map[int]int
	checksum uint64
}

// Unify builds a catalog from the device's effect and preset lists.
//
// Identifiers default to the display name. A name shared between the two
// origins (or repeated within one) is disambiguated by prefixing the origin
// tag, then by appending the native index, so every build yields unique
// identifiers regardless of how creatively the presets are named.
func Unify(effects []string, presets map[int]wled.Preset) *Catalog {
	entries := make([]Entry, 0, len(presets)+len(effects))

	for _, slot := range wled.PresetSlots(presets) {
		entries = append(entries, Entry{
			Name:        presets[slot].Name,
			Origin:      OriginPreset,
			NativeIndex: slot,
		})
	}
	for index, name := range effects {
		entries = append(entries, Entry{
			Name:        name,
			Origin:      OriginEffect,
			NativeIndex: index,
		})
	}

	assignIdentifiers(entries)

	c := &Catalog{
		entries:  entries,
		byID:     make(map[string]int, len(entries)),
		byPreset: make(map[int]int),
		byEffect: make(map[int]int),
	}
	for i, e := range entries {
		c.byID[e.ID] = i
		switch e.Origin {
		case OriginPreset:
			c.byPreset[e.NativeIndex] = i
		case OriginEffect:
			c.byEffect[e.NativeIndex] = i
		}
	}
	c.checksum = checksumEntries(entries)
	return c
}

// assignIdentifiers fills the ID field of every entry, escalating through
// name → "origin: name" → "origin: name (index)" until unique.
func assignIdentifiers(entries []Entry) {
	nameCount := make(map[string]int, len(entries))
	for _, e := range entries {
		nameCount[e.Name]++
	}

	used := make(map[string]bool, len(entries))
	for i := range entries {
		e := &entries[i]
		id := e.Name
		if nameCount[e.Name] > 1 {
			id = string(e.Origin) + ": " + e.Name
		}
		if used[id] {
			id = string(e.Origin) + ": " + e.Name + " (" + strconv.Itoa(e.NativeIndex) + ")"
		}
		used[id] = true
		e.ID = id
	}
}

// checksumEntries hashes the ordered (origin, name) pairs with FNV-1a.
func checksumEntries(entries []Entry) uint64 {
	h := fnv.New64a()
	for _, e := range entries {
		h.Write([]byte(e.Origin))
		h.Write([]byte{0})
		h.Write([]byte(e.Name))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Entries returns the ordered entry list. The returned slice is a copy.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Checksum returns the FNV-1a hash of the ordered (origin, name) pairs.
// The loop compares length and checksum against a fresh device read to
// decide whether a rebuild is needed.
func (c *Catalog) Checksum() uint64 {
	return c.checksum
}

// Resolve maps an identifier to the entry it selects. Unknown identifiers
// fail with ErrUnknownIdentifier; nothing is mutated.
func (c *Catalog) Resolve(id string) (Entry, error) {
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, selectionError(id)
	}
	return c.entries[i], nil
}

// EntryForPreset returns the entry for a preset slot, if listed.
func (c *Catalog) EntryForPreset(slot int) (Entry, bool) {
	i, ok := c.byPreset[slot]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// EntryForEffect returns the entry for an effect index, if listed.
func (c *Catalog) EntryForEffect(index int) (Entry, bool) {
	i, ok := c.byEffect[index]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}
