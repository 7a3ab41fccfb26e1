package app

import (
	"fmt"
	"io"

	"github.com/dshills/runloop/internal/event"
	"github.com/dshills/runloop/internal/event/dispatch"
)

// Countdown prints a countdown driven by the queue-empty event. Each
// notification prints the current value and triggers a tick, which keeps
// the loop alive until the count reaches zero.
type Countdown struct {
	n    int
	out  io.Writer
	d    *dispatch.Dispatcher
	tick *event.Event
}

// NewCountdown registers a countdown from n on d.
func NewCountdown(d *dispatch.Dispatcher, n int, out io.Writer) (*Countdown, error) {
	if n < 0 {
		return nil, fmt.Errorf("countdown from %d: must not be negative", n)
	}
	c := &Countdown{n: n, out: out, d: d}
	c.tick = event.New(c, event.WithName("countdown.tick"), event.WithQueue(d))
	if err := event.Register(d.QueueEmpty(), c, (*Countdown).onQueueEmpty, nil); err != nil {
		return nil, err
	}
	return c, nil
}

// Remaining returns the current count.
func (c *Countdown) Remaining() int {
	return c.n
}

// Close unregisters the countdown.
func (c *Countdown) Close() {
	event.UnregisterOwner(c.d.QueueEmpty(), c)
}

func (c *Countdown) onQueueEmpty(*event.Event, any, any) error {
	if c.n == 0 {
		_, err := fmt.Fprintln(c.out, "Ignition ...")
		return err
	}
	if _, err := fmt.Fprintln(c.out, c.n); err != nil {
		return err
	}
	c.n--
	return c.tick.Trigger(c.n)
}
