// Package dispatch provides the process-wide event dispatcher.
//
// The Dispatcher owns a FIFO queue of triggered events and a single
// run-to-completion loop that drains it. All listeners of one event run,
// in listener-table order, before the next event is popped. Events
// triggered by a listener go to the tail of the queue; they are never
// dispatched recursively.
//
// # Lifecycle Events
//
// Three ordinary events are emitted by the dispatcher itself:
//
//   - LoopStart: dispatched once when Loop begins.
//   - QueueEmpty: dispatched whenever the queue drains while the exit flag
//     is unset. A listener that triggers more events keeps the loop alive.
//   - LoopEnd: dispatched once when Loop finishes.
//
// When a queue-empty dispatch that follows a drained event leaves the
// queue empty, the exit flag is set and the loop stops. The flag is never
// cleared by Loop, so a listener that only enqueues work every other call
// is not asked again after its first idle call.
//
// # Failures
//
// A listener that returns an error or panics is reported as an
// *InvocationError. It is logged and then passed to the optional
// ErrorHandler. Dispatch continues with the next listener and Loop never
// returns it.
//
// # Usage
//
//	d := dispatch.Instance()
//	c := &countdown{n: 10}
//	_ = event.Register(d.QueueEmpty(), c, (*countdown).onQueueEmpty, nil)
//	if err := d.Loop(); err != nil {
//	    // Loop re-entered or dispatcher closed
//	}
//	runtime.KeepAlive(c)
package dispatch
