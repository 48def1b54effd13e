package wled

import "errors"

// Transport errors for the device client.
//
// Every failure from this package wraps one of these two sentinels, so the
// synchronization loop can decide between "retry later, maybe mark
// unavailable" (unreachable) and "log and drop" (malformed) with errors.Is.
var (
	// ErrUnreachable indicates the device did not answer within the bounded
	// timeout, refused the connection, or failed server-side.
	ErrUnreachable = errors.New("wled: device unreachable")

	// ErrMalformed indicates the device answered but the response failed
	// structural validation.
	ErrMalformed = errors.New("wled: malformed device response")
)
