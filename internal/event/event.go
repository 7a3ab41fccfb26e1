package event

import (
	"fmt"
	"runtime"
	"slices"
	"sync"
	"weak"

	"github.com/google/uuid"
)

// defaultName is used for events created without WithName.
const defaultName = "anonymous"

// Event is a named signal owned by a single emitter.
//
// Listeners are kept in a table keyed by owner identity. The table holds
// owners weakly: registering never keeps an owner alive, and an owner's
// entry disappears once the owner has been garbage collected.
type Event struct {
	id      string
	name    string
	emitter func() any
	queue   Queue

	// mu guards the listener table. Cleanup hooks run on a runtime
	// goroutine and purge entries concurrently with the dispatch thread.
	mu     sync.Mutex
	owners []*ownerEntry
	index  map[any]*ownerEntry

	// hooks holds the owners' cleanup hooks. It is stopped when the event
	// is collected, so owners that outlive the event carry nothing of it.
	hooks *hookSet
}

// hookSet is the set of owner cleanup hooks of one event. It must not
// reference the event.
type hookSet struct {
	mu   sync.Mutex
	next uint64
	m    map[uint64]runtime.Cleanup
}

func (h *hookSet) add(c runtime.Cleanup) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.m[h.next] = c
	return h.next
}

// stop cancels one hook. Stopping a hook that already ran is harmless.
func (h *hookSet) stop(id uint64) {
	h.mu.Lock()
	c, ok := h.m[id]
	delete(h.m, id)
	h.mu.Unlock()
	if ok {
		c.Stop()
	}
}

func (h *hookSet) stopAll() {
	h.mu.Lock()
	hooks := h.m
	h.m = make(map[uint64]runtime.Cleanup)
	h.mu.Unlock()
	for _, c := range hooks {
		c.Stop()
	}
}

func (h *hookSet) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.m)
}

// New creates an event emitted by emitter. The event references its
// emitter weakly, so an emitter may own its events without creating a
// cycle that outlives it.
//
// New panics if emitter is nil.
func New[E any](emitter *E, opts ...Option) *Event {
	if emitter == nil {
		panic("event: New called with nil emitter")
	}
	wp := weak.Make(emitter)
	e := &Event{
		id:   uuid.NewString(),
		name: defaultName,
		emitter: func() any {
			if p := wp.Value(); p != nil {
				return p
			}
			return nil
		},
		index: make(map[any]*ownerEntry),
		hooks: &hookSet{m: make(map[uint64]runtime.Cleanup)},
	}
	for _, opt := range opts {
		opt(e)
	}
	runtime.AddCleanup(e, (*hookSet).stopAll, e.hooks)
	return e
}

// ID returns the unique identifier of the event.
func (e *Event) ID() string {
	return e.id
}

// Name returns the diagnostic name of the event.
func (e *Event) Name() string {
	return e.name
}

// Emitter returns the object that emits this event, or nil if the emitter
// has been collected.
func (e *Event) Emitter() any {
	return e.emitter()
}

// String returns the name and a short form of the ID.
func (e *Event) String() string {
	return fmt.Sprintf("%s[%s]", e.name, e.id[:8])
}

// Trigger puts the event on the dispatcher queue. Listeners run later,
// when the dispatcher loop pops the event.
func (e *Event) Trigger(payload any) error {
	q := e.queue
	if q == nil {
		q = Bound()
	}
	if q == nil {
		return fmt.Errorf("trigger %s: %w", e, ErrUnboundDispatcher)
	}
	q.Enqueue(e, payload)
	return nil
}

// Listeners returns a point-in-time copy of the listener table in owner
// registration order. Entries whose owner has been collected are dropped.
//
// The copy is what the dispatcher iterates; registrations made while it
// iterates only affect later dispatches.
func (e *Event) Listeners() []OwnerListeners {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneLocked()
	out := make([]OwnerListeners, 0, len(e.owners))
	for _, en := range e.owners {
		out = append(out, OwnerListeners{
			resolve:   en.resolve,
			ownerType: en.ownerType,
			bindings:  slices.Clone(en.bindings),
		})
	}
	return out
}

// Len returns the number of live owners with at least one listener.
func (e *Event) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneLocked()
	return len(e.owners)
}

// pruneLocked drops entries whose owner is gone. Their cleanup hooks may
// not have run yet.
func (e *Event) pruneLocked() {
	e.owners = slices.DeleteFunc(e.owners, func(en *ownerEntry) bool {
		if en.resolve() != nil {
			return false
		}
		e.hooks.stop(en.hook)
		delete(e.index, en.key)
		return true
	})
}

// removeLocked deletes the entry for key and stops its cleanup hook.
func (e *Event) removeLocked(key any) {
	en, ok := e.index[key]
	if !ok {
		return
	}
	e.hooks.stop(en.hook)
	delete(e.index, key)
	e.owners = slices.DeleteFunc(e.owners, func(x *ownerEntry) bool {
		return x == en
	})
}

// purge is run by the owner's cleanup hook after the owner is collected.
func (e *Event) purge(key any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(key)
}
