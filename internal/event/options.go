package event

// Option configures an Event.
type Option func(*Event)

// WithName sets the diagnostic name used in logs, metrics and spans.
func WithName(name string) Option {
	return func(e *Event) {
		if name != "" {
			e.name = name
		}
	}
}

// WithQueue binds the event to q instead of the process-wide queue.
func WithQueue(q Queue) Option {
	return func(e *Event) {
		e.queue = q
	}
}
