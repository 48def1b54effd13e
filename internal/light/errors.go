package light

import (
	"errors"
	"fmt"
)

// Sentinel errors for the light core.
//
// These errors can be checked using errors.Is() for specific handling.
var (
	// ErrUnknownIdentifier indicates a selection named an identifier that is
	// not in the current unified catalog. This is a caller bug (a stale
	// identifier), not a transient condition, and is never retried.
	ErrUnknownIdentifier = errors.New("light: unknown selection identifier")

	// ErrStopped indicates the synchronization loop has shut down and can no
	// longer accept operations.
	ErrStopped = errors.New("light: synchronization loop stopped")
)

// ConsistencyWarning reports that a snapshot carried an internally
// inconsistent color-mode indication: the device claimed both the RGB and
// CCT channels drive the output, or neither. Decode resolves the conflict
// (CCT takes precedence when supported) and returns the warning so the
// caller can log it; it is never an error.
type ConsistencyWarning struct {
	RGBActive bool
	CCTActive bool
}

func (w ConsistencyWarning) String() string {
	if w.RGBActive && w.CCTActive {
		return "device reports both RGB and CCT channels active"
	}
	return "device reports neither RGB nor CCT channel active"
}

// selectionError wraps ErrUnknownIdentifier with the offending identifier.
func selectionError(id string) error {
	return fmt.Errorf("%w: %q", ErrUnknownIdentifier, id)
}
