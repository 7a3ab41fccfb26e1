package event

import (
	"fmt"
	"reflect"
	"runtime"
	"unsafe"
	"weak"
)

// Callback is a listener bound to an owner of type O.
//
// The owner is passed in on every call rather than captured, which is what
// lets the event hold it weakly. A callback must not close over its owner:
// doing so would keep the owner alive for as long as the registration.
// A non-nil error marks the invocation as failed; the dispatcher reports it
// and carries on with the next listener.
type Callback[O any] func(owner *O, ev *Event, payload, data any) error

// Binding is one registered callback with its listener data.
type Binding struct {
	invoke func(owner any, ev *Event, payload, data any) error
	code   uintptr
	data   any
}

// Data returns the listener data supplied at registration.
func (b Binding) Data() any {
	return b.data
}

// Invoke calls the callback. owner must be the value resolved from the
// OwnerListeners that holds this binding.
func (b Binding) Invoke(owner any, ev *Event, payload any) error {
	return b.invoke(owner, ev, payload, b.data)
}

// OwnerListeners is a snapshot of one owner's bindings, in registration
// order.
type OwnerListeners struct {
	resolve   func() any
	ownerType string
	bindings  []Binding
}

// Owner resolves the weak owner reference. It reports false once the
// owner has been collected.
func (ol OwnerListeners) Owner() (any, bool) {
	o := ol.resolve()
	return o, o != nil
}

// OwnerType returns the dynamic type of the owner, for diagnostics.
func (ol OwnerListeners) OwnerType() string {
	return ol.ownerType
}

// Bindings returns the owner's bindings.
func (ol OwnerListeners) Bindings() []Binding {
	return ol.bindings
}

// ownerEntry is a row of the listener table.
type ownerEntry struct {
	key       any // weak.Pointer[O]
	resolve   func() any
	ownerType string
	bindings  []Binding
	hook      uint64
}

// cleanupArg is handed to the owner's cleanup hook. It must not reference
// the owner or the hook would keep it reachable.
type cleanupArg struct {
	event weak.Pointer[Event]
	key   any
}

func purgeOwner(arg cleanupArg) {
	if e := arg.event.Value(); e != nil {
		e.purge(arg.key)
	}
}

// Register adds cb as a listener of e bound to owner. Registering the same
// callback again appends a second binding; both run on every dispatch, each
// with its own data.
func Register[O any](e *Event, owner *O, cb Callback[O], data any) error {
	if owner == nil || cb == nil {
		return ErrInvalidListener
	}
	if unsafe.Sizeof(*owner) == 0 {
		return fmt.Errorf("%w: zero-sized owner %T", ErrInvalidListener, owner)
	}

	key := weak.Make(owner)
	b := Binding{
		invoke: func(o any, ev *Event, payload, data any) error {
			return cb(o.(*O), ev, payload, data)
		},
		code: funcCode(cb),
		data: data,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if en, ok := e.index[key]; ok {
		en.bindings = append(en.bindings, b)
		return nil
	}

	en := &ownerEntry{
		key: key,
		resolve: func() any {
			if p := key.Value(); p != nil {
				return p
			}
			return nil
		},
		ownerType: fmt.Sprintf("%T", owner),
		bindings:  []Binding{b},
	}
	en.hook = e.hooks.add(runtime.AddCleanup(owner, purgeOwner, cleanupArg{event: weak.Make(e), key: key}))
	e.owners = append(e.owners, en)
	e.index[key] = en
	return nil
}

// UnregisterOwner removes every listener bound to owner.
// It is a no-op if owner has none.
func UnregisterOwner[O any](e *Event, owner *O) {
	if owner == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.removeLocked(weak.Make(owner))
}

// UnregisterMethod removes the owner's bindings whose callback is the same
// function as cb, compared by code pointer. Method expressions such as
// (*T).m always match each other; closures are not guaranteed to. The
// owner's entry is dropped when no bindings remain.
// It is a no-op if nothing matches.
func UnregisterMethod[O any](e *Event, owner *O, cb Callback[O]) {
	if owner == nil || cb == nil {
		return
	}
	key := weak.Make(owner)
	code := funcCode(cb)

	e.mu.Lock()
	defer e.mu.Unlock()

	en, ok := e.index[key]
	if !ok {
		return
	}
	kept := en.bindings[:0]
	for _, b := range en.bindings {
		if b.code != code {
			kept = append(kept, b)
		}
	}
	clear(en.bindings[len(kept):])
	en.bindings = kept

	if len(en.bindings) == 0 {
		e.removeLocked(key)
	}
}

// Has reports whether owner has at least one listener on e.
func Has[O any](e *Event, owner *O) bool {
	if owner == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.index[weak.Make(owner)]
	return ok
}

// funcCode returns the code pointer of fn, which identifies the function
// but not the closure instance.
func funcCode(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
