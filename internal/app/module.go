package app

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	"github.com/dshills/runloop/internal/config"
	"github.com/dshills/runloop/internal/event/dispatch"
	"github.com/dshills/runloop/internal/logging"
)

// Module wires the dispatcher and its ambient services from cfg. Log
// output goes to logOut.
func Module(cfg config.Config, logOut io.Writer) fx.Option {
	return fx.Module("runloop",
		fx.Supply(cfg),
		fx.Provide(
			func(cfg config.Config) (*zerolog.Logger, error) {
				l, err := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)
				if err != nil {
					return nil, err
				}
				return &l, nil
			},
			provideRegistry,
			provideMetrics,
			provideTracer,
			fx.Annotate(
				provideQueueCapacity,
				fx.ResultTags(`group:"dispatch_options"`),
			),
		),
		dispatch.Module(),
		fx.Invoke(registerLifecycle),
	)
}

func provideRegistry() (*prometheus.Registry, prometheus.Registerer) {
	reg := prometheus.NewRegistry()
	return reg, reg
}

// provideMetrics returns nil when metrics are disabled.
func provideMetrics(cfg config.Config, reg prometheus.Registerer) (*dispatch.Metrics, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	return dispatch.NewMetrics(reg, cfg.Metrics.Namespace)
}

// provideTracer uses the global tracer provider when tracing is enabled.
func provideTracer(cfg config.Config) trace.Tracer {
	if !cfg.Tracing.Enabled {
		return noop.NewTracerProvider().Tracer("")
	}
	return otel.Tracer(cfg.Tracing.TracerName)
}

func provideQueueCapacity(cfg config.Config) dispatch.Option {
	return dispatch.WithQueueCapacity(cfg.Dispatcher.QueueCapacity)
}

type lifecycleParams struct {
	fx.In

	LC         fx.Lifecycle
	Logger     *zerolog.Logger
	Dispatcher *dispatch.Dispatcher
}

func registerLifecycle(p lifecycleParams) {
	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Logger.Debug().Msg("dispatcher ready")
			return nil
		},
		OnStop: func(context.Context) error {
			st := p.Dispatcher.Stats()
			p.Logger.Debug().
				Uint64("loops", st.Loops).
				Uint64("events", st.EventsDispatched).
				Msg("dispatcher stopped")
			return nil
		},
	})
}
