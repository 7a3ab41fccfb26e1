package dispatch

import (
	"runtime/debug"
	"time"

	"github.com/dshills/runloop/internal/event"
)

// Result represents the outcome of one listener invocation.
type Result struct {
	// Success is true if the listener returned nil without panicking.
	Success bool

	// Error is the error returned by the listener, if any.
	Error error

	// Panicked is true if the listener panicked.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked is true.
	PanicValue any

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// Duration is how long the listener took to execute.
	Duration time.Duration
}

// IsSuccess returns true if the result indicates successful execution.
func (r Result) IsSuccess() bool {
	return r.Success && !r.Panicked && r.Error == nil
}

// IsError returns true if the listener returned an error (not panic).
func (r Result) IsError() bool {
	return r.Error != nil && !r.Panicked
}

// IsPanic returns true if the listener panicked.
func (r Result) IsPanic() bool {
	return r.Panicked
}

// Executor runs a single listener binding with panic recovery and timing.
type Executor struct {
	now func() time.Time
}

// NewExecutor creates a new executor.
func NewExecutor() *Executor {
	return &Executor{now: time.Now}
}

// Execute invokes b for owner and returns the result. A panic in the
// listener is recovered and recorded; it never escapes Execute.
func (x *Executor) Execute(owner any, ev *event.Event, payload any, b event.Binding) (result Result) {
	start := x.now()

	defer func() {
		result.Duration = x.now().Sub(start)

		if r := recover(); r != nil {
			result.Success = false
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = debug.Stack()
		}
	}()

	if err := b.Invoke(owner, ev, payload); err != nil {
		result.Error = err
		return result
	}

	result.Success = true
	return result
}
