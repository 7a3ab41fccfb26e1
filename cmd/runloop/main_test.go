package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr strings.Builder
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Countdown(t *testing.T) {
	code, out, _ := runCmd(t, "countdown", "--from", "3", "--log-level", "off")

	assert.Equal(t, 0, code)
	assert.Equal(t, "3\n2\n1\nIgnition ...\n", out)
}

func TestRun_CountdownDefault(t *testing.T) {
	code, out, _ := runCmd(t, "countdown", "--log-level", "off")

	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "10", lines[0])
	assert.Equal(t, "Ignition ...", lines[10])
}

func TestRun_Metrics(t *testing.T) {
	code, _, errOut := runCmd(t, "countdown", "-n", "1", "--log-level", "off", "--metrics")

	require.Equal(t, 0, code)
	assert.Contains(t, errOut, "runloop_dispatch_loops_total 1")
}

func TestRun_Script(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.lua")
	require.NoError(t, os.WriteFile(path, []byte(`loop.on("loop_end", function(name) print("bye from " .. name) end)`), 0o600))

	code, out, _ := runCmd(t, "script", path, "--log-level", "off")

	assert.Equal(t, 0, code)
	assert.Equal(t, "bye from loop_end\n", out)
}

func TestRun_Config(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runloop.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"off\"\n\n[metrics]\nnamespace = \"demo\"\n"), 0o600))

	code, _, errOut := runCmd(t, "countdown", "-n", "0", "--config", path, "--metrics")

	require.Equal(t, 0, code)
	assert.Contains(t, errOut, "demo_dispatch_loops_total 1")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad level", []string{"countdown", "--log-level", "loud"}, "log.level"},
		{"negative", []string{"countdown", "--from", "-1", "--log-level", "off"}, "must not be negative"},
		{"missing script", []string{"script", "/nonexistent/x.lua", "--log-level", "off"}, "x.lua"},
		{"script args", []string{"script"}, "accepts 1 arg"},
		{"missing config", []string{"countdown", "--config", "/nonexistent/runloop.toml"}, "runloop.toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCmd(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, errOut, tt.want)
		})
	}
}
