package dispatch

import (
	"sync/atomic"
	"time"
)

// Stats contains dispatcher statistics.
type Stats struct {
	// Loops is the number of completed Loop calls.
	Loops uint64

	// EventsDispatched counts dispatched events, built-in events included.
	EventsDispatched uint64

	// QueueEmptyNotifications counts dispatches of the queue-empty event.
	QueueEmptyNotifications uint64

	// Invocations is the total number of listener invocations.
	Invocations uint64

	// Failed is the number of listeners that returned an error.
	Failed uint64

	// Panicked is the number of listeners that panicked.
	Panicked uint64

	// TotalDuration is the cumulative time spent in listeners.
	TotalDuration time.Duration

	// AvgDuration is the average listener execution time.
	AvgDuration time.Duration
}

// counters holds the live values behind Stats.
type counters struct {
	loops       atomic.Uint64
	dispatched  atomic.Uint64
	queueEmpty  atomic.Uint64
	invocations atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
	totalTimeNs atomic.Int64
}

func (c *counters) record(r Result) {
	c.invocations.Add(1)
	c.totalTimeNs.Add(r.Duration.Nanoseconds())

	switch {
	case r.Panicked:
		c.panicked.Add(1)
	case r.Error != nil:
		c.failed.Add(1)
	}
}

// snapshot reads the counters. Values may be slightly inconsistent if
// they are updated concurrently.
func (c *counters) snapshot() Stats {
	invocations := c.invocations.Load()
	totalNs := c.totalTimeNs.Load()

	var avgNs int64
	if invocations > 0 {
		avgNs = totalNs / int64(invocations)
	}

	return Stats{
		Loops:                   c.loops.Load(),
		EventsDispatched:        c.dispatched.Load(),
		QueueEmptyNotifications: c.queueEmpty.Load(),
		Invocations:             invocations,
		Failed:                  c.failed.Load(),
		Panicked:                c.panicked.Load(),
		TotalDuration:           time.Duration(totalNs),
		AvgDuration:             time.Duration(avgNs),
	}
}

func (c *counters) reset() {
	c.loops.Store(0)
	c.dispatched.Store(0)
	c.queueEmpty.Store(0)
	c.invocations.Store(0)
	c.failed.Store(0)
	c.panicked.Store(0)
	c.totalTimeNs.Store(0)
}
