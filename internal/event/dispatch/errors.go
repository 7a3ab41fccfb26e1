package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dispatch package.
var (
	// ErrDuplicateDispatcher is returned by New while another dispatcher is live.
	ErrDuplicateDispatcher = errors.New("dispatcher already exists")

	// ErrLoopRunning is returned when Loop is called from inside a listener.
	ErrLoopRunning = errors.New("dispatcher loop is already running")

	// ErrClosed is returned when Loop is called on a closed dispatcher.
	ErrClosed = errors.New("dispatcher is closed")

	// ErrListenerFailed matches every InvocationError via errors.Is.
	ErrListenerFailed = errors.New("listener failed")
)

// InvocationError describes a listener that returned an error or panicked.
// It is reported at the dispatch site and never returned from Loop.
type InvocationError struct {
	// EventID and EventName identify the event being dispatched.
	EventID   string
	EventName string

	// OwnerType is the dynamic type of the listener's owner.
	OwnerType string

	// Err is the error returned by the listener. It is nil for panics.
	Err error

	// Panicked is true if the listener panicked.
	Panicked bool

	// PanicValue is the value passed to panic().
	PanicValue any

	// Stack is the stack trace captured at the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("listener %s on event %s panicked: %v", e.OwnerType, e.EventName, e.PanicValue)
	}
	return fmt.Sprintf("listener %s on event %s: %v", e.OwnerType, e.EventName, e.Err)
}

// Unwrap returns the listener's error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match InvocationError with ErrListenerFailed.
func (e *InvocationError) Is(target error) bool {
	return target == ErrListenerFailed
}
