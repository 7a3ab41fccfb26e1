package dispatch

import (
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dshills/runloop/internal/event"
)

// current is the process-wide dispatcher.
var current atomic.Pointer[Dispatcher]

// queued is a triggered event waiting to be dispatched.
type queued struct {
	ev      *event.Event
	payload any
}

// Dispatcher is a single-threaded, run-to-completion event dispatcher.
// Every listener of a popped event runs before the next event is popped.
//
// There is at most one live Dispatcher per process. It is bound as the
// queue behind event.Trigger while it is live.
type Dispatcher struct {
	cfg  config
	exec *Executor

	loopStart  *event.Event
	loopEnd    *event.Event
	queueEmpty *event.Event

	mu    sync.Mutex
	queue []queued
	head  int

	exit    atomic.Bool
	running atomic.Bool
	closed  atomic.Bool
	state   atomic.Int32

	stats counters
}

// New creates the process-wide dispatcher and binds it to the event
// package. It returns ErrDuplicateDispatcher if a dispatcher is already
// live; Close the existing one first.
func New(opts ...Option) (*Dispatcher, error) {
	d := newDispatcher(opts...)
	if !current.CompareAndSwap(nil, d) {
		return nil, ErrDuplicateDispatcher
	}
	event.Bind(d)
	return d, nil
}

// Instance returns the process-wide dispatcher, creating it with default
// options on first use.
func Instance() *Dispatcher {
	for {
		if d := current.Load(); d != nil {
			return d
		}
		if d, err := New(); err == nil {
			return d
		}
	}
}

// Current returns the live dispatcher, or nil if there is none.
func Current() *Dispatcher {
	return current.Load()
}

func newDispatcher(opts ...Option) *Dispatcher {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracer == nil {
		cfg.tracer = noop.NewTracerProvider().Tracer("")
	}

	d := &Dispatcher{
		cfg:   cfg,
		exec:  NewExecutor(),
		queue: make([]queued, 0, cfg.queueCapacity),
	}
	d.loopStart = event.New(d, event.WithName("loop_start"), event.WithQueue(d))
	d.loopEnd = event.New(d, event.WithName("loop_end"), event.WithQueue(d))
	d.queueEmpty = event.New(d, event.WithName("queue_empty"), event.WithQueue(d))
	return d
}

// Close unbinds the dispatcher and releases the process-wide slot so a new
// dispatcher can be created. Queued events are dropped. Close is
// idempotent.
func (d *Dispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	event.Unbind(d)
	current.CompareAndSwap(d, nil)

	d.mu.Lock()
	clear(d.queue)
	d.queue = d.queue[:0]
	d.head = 0
	d.mu.Unlock()
	d.cfg.metrics.setQueueDepth(0)
	return nil
}

// LoopStart returns the event dispatched when Loop begins.
func (d *Dispatcher) LoopStart() *event.Event {
	return d.loopStart
}

// LoopEnd returns the event dispatched when Loop finishes.
func (d *Dispatcher) LoopEnd() *event.Event {
	return d.loopEnd
}

// QueueEmpty returns the event dispatched whenever the queue drains while
// the exit flag is unset. Its listeners may trigger events to keep the
// loop running.
func (d *Dispatcher) QueueEmpty() *event.Event {
	return d.queueEmpty
}

// QueueSize returns the number of events waiting to be dispatched.
func (d *Dispatcher) QueueSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue) - d.head
}

// Enqueue appends ev to the tail of the queue. It is called by
// event.Trigger and should not be called directly.
func (d *Dispatcher) Enqueue(ev *event.Event, payload any) {
	d.mu.Lock()
	d.queue = append(d.queue, queued{ev: ev, payload: payload})
	n := len(d.queue) - d.head
	d.mu.Unlock()
	d.cfg.metrics.setQueueDepth(n)
}

// pop removes the event at the head of the queue.
func (d *Dispatcher) pop() (queued, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.head == len(d.queue) {
		return queued{}, false
	}
	q := d.queue[d.head]
	d.queue[d.head] = queued{}
	d.head++

	switch {
	case d.head == len(d.queue):
		d.queue = d.queue[:0]
		d.head = 0
	case d.head >= 1024 && d.head*2 >= len(d.queue):
		n := copy(d.queue, d.queue[d.head:])
		clear(d.queue[n:])
		d.queue = d.queue[:n]
		d.head = 0
	}
	d.cfg.metrics.setQueueDepth(len(d.queue) - d.head)
	return q, true
}

// Exit reports whether the exit flag is set.
func (d *Dispatcher) Exit() bool {
	return d.exit.Load()
}

// SetExit sets the exit flag. Once set, the loop stops as soon as the queue
// is empty and queue-empty is no longer dispatched. Loop never clears the
// flag.
func (d *Dispatcher) SetExit(v bool) {
	d.exit.Store(v)
}

// State returns the current loop state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}

// Stats returns dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	return d.stats.snapshot()
}

// ResetStats resets all statistics to zero.
func (d *Dispatcher) ResetStats() {
	d.stats.reset()
}
