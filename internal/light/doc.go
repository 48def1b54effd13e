// Package light is the device-state synchronization and capability
// translation core.
//
// Four pieces, leaf-first:
//
//   - Mirror holds the last accepted snapshot under a staleness-rejection
//     rule: a snapshot is folded in only when strictly newer, so replayed
//     or reordered device responses never roll state backwards.
//   - Translator converts platform light commands (power, brightness, RGB,
//     color temperature) into native field sets and snapshots back into
//     platform views. Its signature behavior is mapping color temperature
//     onto the device's 0-255 tunable-white channel by linear kelvin
//     scaling, with an RGB black-body approximation for hardware that has
//     no such channel. It enforces that exactly one of RGB and color
//     temperature is ever surfaced.
//   - Catalog unifies the device's two selectable-list concepts, persisted
//     presets and transient effects, into one ordered list with identifiers
//     unique across both origins. Selections route back to the right device
//     concept by origin; catalogs are rebuilt whole, never patched.
//   - Loop runs the per-device state machine: periodic polls, push-frame
//     intake, serialized command writes with an optimistic pending overlay,
//     consecutive-failure availability tracking with self-healing, and
//     publication of the merged view.
//
// Each device instance gets its own Loop; instances share nothing.
package light
