package event

import (
	"errors"
	"fmt"
	"runtime"
	"testing"
	"time"
	"weak"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name  string
	calls []string
}

func (r *recorder) record(_ *Event, payload, data any) error {
	r.calls = append(r.calls, fmt.Sprintf("%s %v %v", r.name, payload, data))
	return nil
}

func (r *recorder) other(_ *Event, payload, _ any) error {
	r.calls = append(r.calls, fmt.Sprintf("%s other %v", r.name, payload))
	return nil
}

type empty struct{}

// invokeAll runs a snapshot the way the dispatcher does.
func invokeAll(t *testing.T, e *Event, payload any) {
	t.Helper()
	for _, ol := range e.Listeners() {
		owner, ok := ol.Owner()
		if !ok {
			continue
		}
		for _, b := range ol.Bindings() {
			require.NoError(t, b.Invoke(owner, e, payload))
		}
	}
}

func TestRegister_InvalidListener(t *testing.T) {
	e := New(&emitter{})

	tests := []struct {
		name string
		reg  func() error
	}{
		{"nil owner", func() error {
			return Register[recorder](e, nil, (*recorder).record, nil)
		}},
		{"nil callback", func() error {
			return Register(e, &recorder{}, nil, nil)
		}},
		{"zero-sized owner", func() error {
			return Register(e, &empty{}, func(*empty, *Event, any, any) error { return nil }, nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reg()
			require.ErrorIs(t, err, ErrInvalidListener)
		})
	}
	assert.Equal(t, 0, e.Len())
}

func TestRegister_Order(t *testing.T) {
	e := New(&emitter{})
	spam := &recorder{name: "spam"}
	eggs := &recorder{name: "eggs"}

	require.NoError(t, Register(e, eggs, (*recorder).record, "first"))
	require.NoError(t, Register(e, spam, (*recorder).record, "second"))
	require.NoError(t, Register(e, eggs, (*recorder).other, "third"))

	listeners := e.Listeners()
	require.Len(t, listeners, 2)
	assert.Equal(t, "*event.recorder", listeners[0].OwnerType())

	first, ok := listeners[0].Owner()
	require.True(t, ok)
	assert.Same(t, eggs, first)
	require.Len(t, listeners[0].Bindings(), 2)
	assert.Equal(t, "first", listeners[0].Bindings()[0].Data())
	assert.Equal(t, "third", listeners[0].Bindings()[1].Data())

	second, ok := listeners[1].Owner()
	require.True(t, ok)
	assert.Same(t, spam, second)
}

func TestRegister_Duplicate(t *testing.T) {
	e := New(&emitter{})
	eggs := &recorder{name: "eggs"}

	require.NoError(t, Register(e, eggs, (*recorder).record, "spam"))
	require.NoError(t, Register(e, eggs, (*recorder).record, "eggs"))
	assert.Equal(t, 1, e.Len())

	invokeAll(t, e, "event 1")

	assert.Equal(t, []string{"eggs event 1 spam", "eggs event 1 eggs"}, eggs.calls)
}

func TestRegister_CallbackError(t *testing.T) {
	e := New(&emitter{})
	boom := errors.New("boom")
	owner := &recorder{}

	require.NoError(t, Register(e, owner, func(*recorder, *Event, any, any) error {
		return boom
	}, nil))

	ol := e.Listeners()[0]
	o, _ := ol.Owner()
	err := ol.Bindings()[0].Invoke(o, e, nil)
	assert.ErrorIs(t, err, boom)
}

func TestHas(t *testing.T) {
	e := New(&emitter{})
	spam := &recorder{}
	eggs := &recorder{}

	require.NoError(t, Register(e, spam, (*recorder).record, nil))

	assert.True(t, Has(e, spam))
	assert.False(t, Has(e, eggs))
	assert.False(t, Has[recorder](e, nil))
}

func TestUnregisterOwner(t *testing.T) {
	e := New(&emitter{})
	spam := &recorder{name: "spam"}
	eggs := &recorder{name: "eggs"}
	require.NoError(t, Register(e, spam, (*recorder).record, 1))
	require.NoError(t, Register(e, spam, (*recorder).other, 2))
	require.NoError(t, Register(e, eggs, (*recorder).record, 3))

	UnregisterOwner(e, spam)

	assert.False(t, Has(e, spam))
	assert.True(t, Has(e, eggs))
	assert.Equal(t, 1, e.Len())

	// Unknown and repeated removals are no-ops.
	UnregisterOwner(e, spam)
	UnregisterOwner(e, &recorder{})
	UnregisterOwner[recorder](e, nil)
	assert.Equal(t, 1, e.Len())
}

func TestUnregisterOwner_ReRegister(t *testing.T) {
	e := New(&emitter{})
	spam := &recorder{name: "spam"}
	require.NoError(t, Register(e, spam, (*recorder).record, nil))

	UnregisterOwner(e, spam)
	require.NoError(t, Register(e, spam, (*recorder).record, "again"))

	invokeAll(t, e, 1)
	assert.Equal(t, []string{"spam 1 again"}, spam.calls)
}

func TestUnregisterMethod(t *testing.T) {
	e := New(&emitter{})
	spam := &recorder{name: "spam"}
	require.NoError(t, Register(e, spam, (*recorder).record, "a"))
	require.NoError(t, Register(e, spam, (*recorder).other, "b"))
	require.NoError(t, Register(e, spam, (*recorder).record, "c"))

	UnregisterMethod(e, spam, (*recorder).record)

	require.True(t, Has(e, spam))
	invokeAll(t, e, 1)
	assert.Equal(t, []string{"spam other 1"}, spam.calls)

	UnregisterMethod(e, spam, (*recorder).other)
	assert.False(t, Has(e, spam))
	assert.Equal(t, 0, e.Len())
}

func TestUnregisterMethod_NoMatch(t *testing.T) {
	e := New(&emitter{})
	spam := &recorder{name: "spam"}
	require.NoError(t, Register(e, spam, (*recorder).record, nil))

	UnregisterMethod(e, spam, (*recorder).other)
	UnregisterMethod(e, &recorder{}, (*recorder).record)
	UnregisterMethod(e, spam, nil)

	assert.True(t, Has(e, spam))
	require.Len(t, e.Listeners()[0].Bindings(), 1)
}

func TestUnregisterMethod_MatchesMethodExpression(t *testing.T) {
	e := New(&emitter{})
	spam := &recorder{name: "spam"}
	require.NoError(t, Register(e, spam, (*recorder).record, "a"))
	require.NoError(t, Register(e, spam, (*recorder).other, nil))
	require.NoError(t, Register(e, spam, (*recorder).record, "b"))

	// Every binding of the method goes, whatever its data.
	UnregisterMethod(e, spam, (*recorder).record)

	bindings := e.Listeners()[0].Bindings()
	require.Len(t, bindings, 1)
	invokeAll(t, e, 1)
	assert.Equal(t, []string{"spam other 1"}, spam.calls)
}

func TestListeners_Snapshot(t *testing.T) {
	e := New(&emitter{})
	spam := &recorder{name: "spam"}
	eggs := &recorder{name: "eggs"}
	require.NoError(t, Register(e, spam, (*recorder).record, nil))

	snap := e.Listeners()
	require.NoError(t, Register(e, spam, (*recorder).other, nil))
	require.NoError(t, Register(e, eggs, (*recorder).record, nil))
	UnregisterOwner(e, spam)

	require.Len(t, snap, 1)
	assert.Len(t, snap[0].Bindings(), 1)
	owner, ok := snap[0].Owner()
	require.True(t, ok)
	assert.Same(t, spam, owner)
}

func registerTransient(t *testing.T, e *Event) {
	t.Helper()
	owner := &recorder{name: "transient"}
	require.NoError(t, Register(e, owner, (*recorder).record, nil))
	require.NoError(t, Register(e, owner, (*recorder).other, nil))
}

func TestRegister_OwnerCollected(t *testing.T) {
	e := New(&emitter{})
	keep := &recorder{name: "keep"}
	registerTransient(t, e)
	require.NoError(t, Register(e, keep, (*recorder).record, "kept"))

	// The cleanup hook removes the entry without any query touching the table.
	require.Eventually(t, func() bool {
		runtime.GC()
		e.mu.Lock()
		defer e.mu.Unlock()
		return len(e.index) == 1 && len(e.owners) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, e.Len())
	invokeAll(t, e, "after")
	assert.Equal(t, []string{"keep after kept"}, keep.calls)
}

func TestListeners_SkipsCollectedOwner(t *testing.T) {
	e := New(&emitter{})
	registerTransient(t, e)

	require.Eventually(t, func() bool {
		runtime.GC()
		return len(e.Listeners()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegister_EventNotRetainedByOwner(t *testing.T) {
	owner := &recorder{name: "long-lived"}
	registered, hooks := registerOnOrphan(t, owner)
	require.Equal(t, 1, hooks.len())

	require.Eventually(t, func() bool {
		runtime.GC()
		return registered.Value() == nil && hooks.len() == 0
	}, 2*time.Second, 10*time.Millisecond)
	runtime.KeepAlive(owner)
}

func registerOnOrphan(t *testing.T, owner *recorder) (weak.Pointer[Event], *hookSet) {
	t.Helper()
	e := New(&emitter{name: "orphan"})
	require.NoError(t, Register(e, owner, (*recorder).record, nil))
	return weak.Make(e), e.hooks
}

func TestRegister_DroppedEventsReleaseOwnerHooks(t *testing.T) {
	const n = 100_000
	owner := &recorder{name: "long-lived"}

	heap := func() uint64 {
		runtime.GC()
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return ms.HeapAlloc
	}
	before := heap()

	for i := 0; i < n; i++ {
		e := New(&emitter{})
		require.NoError(t, Register(e, owner, (*recorder).record, nil))
	}

	// Hooks left on the owner would cost close to 100 bytes per event.
	require.Eventually(t, func() bool {
		after := heap()
		return after < before || after-before < n*16
	}, 5*time.Second, 20*time.Millisecond)
	runtime.KeepAlive(owner)
}
