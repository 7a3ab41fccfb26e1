package dispatch

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// Params are the dependencies of the dispatcher in an fx application.
// Everything except the lifecycle is optional.
type Params struct {
	fx.In

	LC      fx.Lifecycle
	Logger  *zerolog.Logger `optional:"true"`
	Metrics *Metrics        `optional:"true"`
	Tracer  trace.Tracer    `optional:"true"`
	Options []Option        `group:"dispatch_options"`
}

// Module provides the process-wide *Dispatcher and closes it when the
// application stops.
func Module() fx.Option {
	return fx.Module("dispatch",
		fx.Provide(Provide),
	)
}

// Provide creates the dispatcher from p and registers its lifecycle hook.
func Provide(p Params) (*Dispatcher, error) {
	opts := make([]Option, 0, len(p.Options)+3)
	if p.Logger != nil {
		opts = append(opts, WithLogger(p.Logger.With().Str("component", "dispatch").Logger()))
	}
	if p.Metrics != nil {
		opts = append(opts, WithMetrics(p.Metrics))
	}
	if p.Tracer != nil {
		opts = append(opts, WithTracer(p.Tracer))
	}
	opts = append(opts, p.Options...)

	d, err := New(opts...)
	if err != nil {
		return nil, err
	}
	p.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return d.Close()
		},
	})
	return d, nil
}
