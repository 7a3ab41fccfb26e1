package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dshills/runloop/internal/config"
	"github.com/dshills/runloop/internal/event/dispatch"
)

func releaseDispatcher(t *testing.T) {
	t.Helper()
	if d := dispatch.Current(); d != nil {
		require.NoError(t, d.Close())
	}
}

func newTestApp(t *testing.T, cfg config.Config) (*App, *bytes.Buffer) {
	t.Helper()
	releaseDispatcher(t)

	var logs bytes.Buffer
	a, err := New(cfg, &logs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, &logs
}

func TestModule_Lifecycle(t *testing.T) {
	releaseDispatcher(t)

	var d *dispatch.Dispatcher
	var m *dispatch.Metrics
	app := fxtest.New(t,
		Module(config.Default(), &bytes.Buffer{}),
		fx.Populate(&d, &m),
	)
	app.RequireStart()

	require.NotNil(t, d)
	assert.Nil(t, m)
	assert.Same(t, d, dispatch.Current())

	app.RequireStop()
	assert.Nil(t, dispatch.Current())
}

func TestModule_DuplicateDispatcher(t *testing.T) {
	releaseDispatcher(t)
	existing, err := dispatch.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = existing.Close() })

	app := fx.New(Module(config.Default(), &bytes.Buffer{}), fx.NopLogger, fx.Invoke(func(*dispatch.Dispatcher) {}))
	assert.ErrorIs(t, app.Err(), dispatch.ErrDuplicateDispatcher)
}

func TestModule_MetricsEnabled(t *testing.T) {
	releaseDispatcher(t)
	cfg := config.Default()
	cfg.Metrics.Enabled = true

	var reg *prometheus.Registry
	var m *dispatch.Metrics
	app := fxtest.New(t, Module(cfg, &bytes.Buffer{}), fx.Populate(&reg, &m))
	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, m)
	families, err := reg.Gather()
	require.NoError(t, err)
	// Only unlabelled collectors are exported before anything is observed.
	assert.NotEmpty(t, families)
}

func TestModule_InvalidLogLevel(t *testing.T) {
	releaseDispatcher(t)
	cfg := config.Default()
	cfg.Log.Level = "loud"

	app := fx.New(Module(cfg, &bytes.Buffer{}), fx.NopLogger, fx.Invoke(func(*dispatch.Dispatcher) {}))
	assert.Error(t, app.Err())
}

func TestApp_RunCountdown(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "json"
	a, logs := newTestApp(t, cfg)

	var out strings.Builder
	require.NoError(t, a.RunCountdown(10, &out))

	assert.Equal(t, "10\n9\n8\n7\n6\n5\n4\n3\n2\n1\nIgnition ...\n", out.String())
	assert.Contains(t, logs.String(), `"message":"loop finished"`)
	assert.Contains(t, logs.String(), `"events":23`)
}

func TestApp_RunScript(t *testing.T) {
	a, _ := newTestApp(t, config.Default())

	path := filepath.Join(t.TempDir(), "hello.lua")
	require.NoError(t, os.WriteFile(path, []byte(`
loop.on("loop_start", function(name) print("hello from " .. name) end)
`), 0o600))

	var out strings.Builder
	require.NoError(t, a.RunScript(path, &out))
	assert.Equal(t, "hello from loop_start\n", out.String())
}

func TestApp_RunScript_Error(t *testing.T) {
	a, _ := newTestApp(t, config.Default())

	err := a.RunScript(filepath.Join(t.TempDir(), "missing.lua"), &strings.Builder{})
	assert.Error(t, err)
}

func TestApp_WriteMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "test"
	a, _ := newTestApp(t, cfg)

	require.NoError(t, a.RunCountdown(2, &strings.Builder{}))

	var buf bytes.Buffer
	require.NoError(t, a.WriteMetrics(&buf))
	text := buf.String()
	assert.Contains(t, text, "test_dispatch_loops_total 1")
	assert.Contains(t, text, `test_dispatch_events_total{event="countdown.tick"} 2`)
	assert.Contains(t, text, `test_dispatch_listener_invocations_total{result="ok"} 3`)
}

func TestApp_CloseReleasesDispatcher(t *testing.T) {
	releaseDispatcher(t)
	a, err := New(config.Default(), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Same(t, a.Dispatcher, dispatch.Current())

	require.NoError(t, a.Close())
	assert.Nil(t, dispatch.Current())
}
