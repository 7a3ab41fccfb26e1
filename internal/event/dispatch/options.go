package dispatch

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Dispatcher.
type Option func(*config)

// ErrorHandler receives every listener failure after it has been logged.
type ErrorHandler func(err *InvocationError)

// config contains configuration for the dispatcher.
type config struct {
	logger        zerolog.Logger
	metrics       *Metrics
	tracer        trace.Tracer
	errorHandler  ErrorHandler
	queueCapacity int
}

// defaultConfig returns the configuration used by Instance.
func defaultConfig() config {
	return config{
		logger:        zerolog.Nop(),
		queueCapacity: 64,
	}
}

// WithLogger sets the logger used to report listener failures.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithTracer sets the tracer used for loop and dispatch spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithErrorHandler sets a callback for listener failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) {
		c.errorHandler = h
	}
}

// WithQueueCapacity sets the initial capacity of the event queue.
func WithQueueCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueCapacity = n
		}
	}
}
