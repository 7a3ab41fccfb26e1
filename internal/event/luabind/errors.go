package luabind

import "errors"

// Errors for script hosting.
var (
	// ErrHostClosed is returned when operating on a closed host.
	ErrHostClosed = errors.New("script host is closed")

	// ErrUnknownEvent is raised when a script names an event that does not exist.
	ErrUnknownEvent = errors.New("unknown event")
)
