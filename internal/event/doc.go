// Package event provides named events with weakly held listeners.
//
// An Event belongs to the object that emits it. Other objects register
// callbacks on it; each callback is bound to an owner, and the owner is
// handed back to the callback on every invocation:
//
//	type Rocket struct {
//	    Launched *event.Event
//	}
//
//	type Tower struct{ log []string }
//
//	func (t *Tower) onLaunch(ev *event.Event, payload, data any) error {
//	    t.log = append(t.log, fmt.Sprint(payload))
//	    return nil
//	}
//
//	r := &Rocket{}
//	r.Launched = event.New(r, event.WithName("rocket.launched"))
//	tower := &Tower{}
//	err := event.Register(r.Launched, tower, (*Tower).onLaunch, nil)
//
// # Listener lifetime
//
// The listener table keys owners by weak pointer. Registration never keeps an
// owner alive: when the owner is collected its entry is removed by a runtime
// cleanup hook, and until that hook runs the entry is skipped because the
// weak pointer no longer resolves. Callbacks must therefore take the owner
// as their first parameter instead of closing over it; method expressions
// such as (*Tower).onLaunch are the natural form.
//
// # Triggering
//
// Trigger does not call listeners. It hands the event and its payload to a
// Queue, normally the dispatcher, which invokes the listeners later from its
// loop. Events created without WithQueue use the queue bound for the process
// by the dispatcher constructor.
package event
