package event

import "sync"

// Queue accepts triggered events for later dispatch.
// The dispatcher is the only implementation outside of tests.
type Queue interface {
	Enqueue(e *Event, payload any)
}

var (
	boundMu sync.RWMutex
	bound   Queue
)

// Bind installs q as the process-wide queue for events that were created
// without WithQueue. It is called by the dispatcher's constructor.
func Bind(q Queue) {
	boundMu.Lock()
	defer boundMu.Unlock()
	bound = q
}

// Unbind removes q as the process-wide queue. It does nothing if another
// queue has been bound since.
func Unbind(q Queue) {
	boundMu.Lock()
	defer boundMu.Unlock()
	if bound == q {
		bound = nil
	}
}

// Bound returns the process-wide queue, or nil if none is bound.
func Bound() Queue {
	boundMu.RLock()
	defer boundMu.RUnlock()
	return bound
}
