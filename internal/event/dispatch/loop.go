package dispatch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/runloop/internal/event"
)

// State is the phase of a running loop.
type State int32

const (
	// StateIdle means no loop is running.
	StateIdle State = iota
	// StateDispatchingStart means loop-start listeners are running.
	StateDispatchingStart
	// StateCheckEmpty means queue-empty listeners are running.
	StateCheckEmpty
	// StateDraining means a queued event is being dispatched.
	StateDraining
	// StateDispatchingEnd means loop-end listeners are running.
	StateDispatchingEnd
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatchingStart:
		return "dispatching_start"
	case StateCheckEmpty:
		return "check_empty"
	case StateDraining:
		return "draining"
	case StateDispatchingEnd:
		return "dispatching_end"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Loop runs the dispatcher until the queue is drained.
//
// It dispatches loop-start, then queue-empty if the queue is empty and the
// exit flag is unset. It then pops and dispatches events in FIFO order.
// Whenever a dispatch leaves the queue empty with exit unset, queue-empty
// is dispatched; if its listeners trigger nothing, exit is set and the loop
// stops. Loop-end is dispatched exactly once at the end.
//
// Listener failures are reported and never returned. Loop returns
// ErrLoopRunning if called from a listener and ErrClosed after Close.
func (d *Dispatcher) Loop() error {
	if d.closed.Load() {
		return ErrClosed
	}
	if !d.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer d.running.Store(false)

	ctx, span := d.cfg.tracer.Start(context.Background(), "dispatch.Loop")
	defer span.End()

	d.setState(StateDispatchingStart)
	d.dispatch(ctx, d.loopStart, nil)

	if !d.exit.Load() && d.QueueSize() == 0 {
		d.notifyQueueEmpty(ctx)
	}

	for {
		d.setState(StateDraining)
		q, ok := d.pop()
		if !ok {
			break
		}
		d.dispatch(ctx, q.ev, q.payload)

		if d.QueueSize() == 0 && !d.exit.Load() {
			d.notifyQueueEmpty(ctx)
			if d.QueueSize() == 0 {
				d.exit.Store(true)
			}
		}
	}

	d.setState(StateDispatchingEnd)
	d.dispatch(ctx, d.loopEnd, nil)
	d.setState(StateIdle)

	d.stats.loops.Add(1)
	d.cfg.metrics.observeLoop()
	return nil
}

func (d *Dispatcher) notifyQueueEmpty(ctx context.Context) {
	d.setState(StateCheckEmpty)
	d.stats.queueEmpty.Add(1)
	d.dispatch(ctx, d.queueEmpty, nil)
}

// dispatch runs every live listener of ev against a snapshot of its
// listener table.
func (d *Dispatcher) dispatch(ctx context.Context, ev *event.Event, payload any) {
	_, span := d.cfg.tracer.Start(ctx, "dispatch "+ev.Name(),
		trace.WithAttributes(
			attribute.String("event.id", ev.ID()),
			attribute.String("event.name", ev.Name()),
		))
	defer span.End()

	d.stats.dispatched.Add(1)
	d.cfg.metrics.observeDispatch(ev.Name())

	var failures int
	for _, ol := range ev.Listeners() {
		owner, ok := ol.Owner()
		if !ok {
			continue
		}
		for _, b := range ol.Bindings() {
			res := d.exec.Execute(owner, ev, payload, b)
			d.stats.record(res)
			d.cfg.metrics.observeInvocation(res)
			if res.IsSuccess() {
				continue
			}
			failures++
			d.report(span, &InvocationError{
				EventID:    ev.ID(),
				EventName:  ev.Name(),
				OwnerType:  ol.OwnerType(),
				Err:        res.Error,
				Panicked:   res.Panicked,
				PanicValue: res.PanicValue,
				Stack:      res.PanicStack,
			})
		}
	}

	if failures > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d listener(s) failed", failures))
	}
}

// report logs a listener failure and forwards it to the error handler.
func (d *Dispatcher) report(span trace.Span, ierr *InvocationError) {
	span.RecordError(ierr)

	logEvent := d.cfg.logger.Error().
		Str("event", ierr.EventName).
		Str("event_id", ierr.EventID).
		Str("owner", ierr.OwnerType)
	if ierr.Panicked {
		logEvent = logEvent.
			Interface("panic", ierr.PanicValue).
			Bytes("stack", ierr.Stack)
	} else {
		logEvent = logEvent.Err(ierr.Err)
	}
	logEvent.Msg("listener failed")

	if d.cfg.errorHandler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.cfg.logger.Error().
				Interface("panic", r).
				Str("event", ierr.EventName).
				Msg("error handler panicked")
		}
	}()
	d.cfg.errorHandler(ierr)
}
