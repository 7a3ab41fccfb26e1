// Package app assembles the runloop process: configuration, logging,
// metrics, tracing and the dispatcher, wired with fx.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/dshills/runloop/internal/config"
	"github.com/dshills/runloop/internal/event/dispatch"
	"github.com/dshills/runloop/internal/event/luabind"
)

// App is a started runloop application.
type App struct {
	Config     config.Config
	Logger     *zerolog.Logger
	Registry   *prometheus.Registry
	Dispatcher *dispatch.Dispatcher

	fx *fx.App
}

// New builds and starts the application.
func New(cfg config.Config, logOut io.Writer) (*App, error) {
	a := &App{Config: cfg}
	a.fx = fx.New(
		Module(cfg, logOut),
		fx.NopLogger,
		fx.Populate(&a.Logger, &a.Registry, &a.Dispatcher),
	)
	if err := a.fx.Err(); err != nil {
		return nil, fmt.Errorf("build app: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.fx.StartTimeout())
	defer cancel()
	if err := a.fx.Start(ctx); err != nil {
		return nil, fmt.Errorf("start app: %w", err)
	}
	return a, nil
}

// Close stops the application and releases the dispatcher.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.fx.StopTimeout())
	defer cancel()
	return a.fx.Stop(ctx)
}

// RunCountdown counts down from the given value on the queue-empty event,
// writing each step to out.
func (a *App) RunCountdown(from int, out io.Writer) error {
	c, err := NewCountdown(a.Dispatcher, from, out)
	if err != nil {
		return err
	}
	defer c.Close()

	return a.loop()
}

// RunScript loads the Lua script at path and runs the loop. The script's
// print writes to out.
func (a *App) RunScript(path string, out io.Writer) error {
	h, err := luabind.NewHost(a.Dispatcher,
		luabind.WithOutput(out),
		luabind.WithLogger(a.Logger.With().Str("component", "luabind").Logger()),
		luabind.WithCallStackSize(a.Config.Script.CallStackSize),
		luabind.WithRegistrySize(a.Config.Script.RegistrySize),
	)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.DoFile(path); err != nil {
		return err
	}
	return a.loop()
}

func (a *App) loop() error {
	if err := a.Dispatcher.Loop(); err != nil {
		return err
	}
	st := a.Dispatcher.Stats()
	a.Logger.Info().
		Uint64("events", st.EventsDispatched).
		Uint64("invocations", st.Invocations).
		Uint64("failed", st.Failed).
		Uint64("panicked", st.Panicked).
		Dur("listener_time", st.TotalDuration).
		Msg("loop finished")
	return nil
}

// WriteMetrics writes every registered metric to w in the Prometheus text
// format.
func (a *App) WriteMetrics(w io.Writer) error {
	families, err := a.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
