package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports dispatcher activity to Prometheus. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	loops       prometheus.Counter
	dispatched  *prometheus.CounterVec
	invocations *prometheus.CounterVec
	duration    prometheus.Histogram
	queueDepth  prometheus.Gauge
}

// NewMetrics creates the dispatcher collectors under namespace and
// registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		loops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "loops_total",
			Help:      "Total number of completed dispatcher loops",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Total number of dispatched events by event name",
		}, []string{"event"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "listener_invocations_total",
			Help:      "Total number of listener invocations by result",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "listener_duration_seconds",
			Help:      "Duration of listener invocations in seconds",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 7),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Number of triggered events waiting to be dispatched",
		}),
	}

	for _, c := range []prometheus.Collector{m.loops, m.dispatched, m.invocations, m.duration, m.queueDepth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeLoop() {
	if m == nil {
		return
	}
	m.loops.Inc()
}

func (m *Metrics) observeDispatch(eventName string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(eventName).Inc()
}

func (m *Metrics) observeInvocation(r Result) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case r.Panicked:
		result = "panic"
	case r.Error != nil:
		result = "error"
	}
	m.invocations.WithLabelValues(result).Inc()
	m.duration.Observe(r.Duration.Seconds())
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
