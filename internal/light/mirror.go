package light

import (
	"sync"
	"time"

	"github.com/wledjoy/wledbridge/internal/wled"
)

// MirrorState is a cheap copy of the mirror's current contents.
type MirrorState struct {
	// Snapshot is the latest accepted device snapshot. Only meaningful when
	// HasState is true.
	Snapshot wled.Snapshot

	// Generation counts accepted snapshots. It increments on every accepted
	// Apply and never decreases.
	Generation uint64

	// Rejected counts snapshots dropped for being stale.
	Rejected uint64

	// LastRead is the timestamp of the latest accepted snapshot.
	LastRead time.Time

	// HasState reports whether any snapshot has been accepted yet.
	HasState bool
}

// Mirror holds the last-known device state under a staleness-rejection rule.
//
// Apply accepts a snapshot only when its timestamp is strictly newer than
// the current one, so replayed or reordered responses can never roll the
// mirror backwards. The synchronization loop is the only writer; Current is
// safe to call from anywhere.
type Mirror struct {
	mu    sync.RWMutex
	state MirrorState
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{}
}

// Apply folds a snapshot into the mirror. It reports whether the snapshot
// was accepted; rejected snapshots leave the mirror unchanged apart from
// the reject counter.
func (m *Mirror) Apply(snap wled.Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.HasState && !snap.Timestamp.After(m.state.Snapshot.Timestamp) {
		m.state.Rejected++
		return false
	}

	m.state.Snapshot = snap
	m.state.Generation++
	m.state.LastRead = snap.Timestamp
	m.state.HasState = true
	return true
}

// Current returns a copy of the mirror's state.
func (m *Mirror) Current() MirrorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
