package event

import "errors"

// Sentinel errors for event registration and triggering.
var (
	// ErrInvalidListener is returned when a callback is not bound to an owner
	// that can be tracked: a nil owner, a nil callback, or a zero-sized owner
	// type (zero-sized values share addresses and have no identity).
	ErrInvalidListener = errors.New("listener must be a callback bound to an owner")

	// ErrUnboundDispatcher is returned by Trigger when the event has no queue
	// and no dispatcher has been bound for the process.
	ErrUnboundDispatcher = errors.New("no dispatcher bound")
)
