// Package wled implements the JSON API client for addressable-LED
// controllers running WLED firmware.
//
// The package owns the wire schema and nothing else: it converts device
// responses into validated Snapshot values and native command field sets
// into requests, classifying every failure as either ErrUnreachable
// (transient transport problem) or ErrMalformed (structurally invalid
// answer). Interpretation of the state — capability translation, brightness
// merging, catalog unification — lives in the light package.
//
// Client covers the HTTP surface (state reads and writes, effect and preset
// catalogs, device info, restart). Socket adds the firmware's WebSocket push
// channel for low-latency change notification; both stamp snapshots from a
// shared strictly-increasing clock so their observations order consistently.
package wled
