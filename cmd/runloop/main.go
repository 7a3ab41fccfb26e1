// Package main is the entry point for the runloop demo.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/runloop/internal/app"
	"github.com/dshills/runloop/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type rootFlags struct {
	configPath string
	logLevel   string
	metrics    bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "runloop",
		Short:         "Run event loop programs",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file (toml, yaml or json)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error|off")
	root.PersistentFlags().BoolVar(&flags.metrics, "metrics", false, "Write dispatcher metrics to stderr on exit")

	var from int
	countdown := &cobra.Command{
		Use:     "countdown",
		Short:   "Count down to ignition on the queue-empty event",
		Example: "  runloop countdown\n  runloop countdown --from 3",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, stderr, func(a *app.App) error {
				return a.RunCountdown(from, stdout)
			})
		},
	}
	countdown.Flags().IntVarP(&from, "from", "n", 10, "Value to count down from")

	script := &cobra.Command{
		Use:     "script FILE",
		Short:   "Run a Lua script whose functions listen to loop events",
		Example: "  runloop script countdown.lua",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, stderr, func(a *app.App) error {
				return a.RunScript(args[0], stdout)
			})
		},
	}

	root.AddCommand(countdown, script)
	return root
}

// withApp loads the configuration, applies flag overrides and runs fn on a
// started application.
func withApp(flags rootFlags, stderr io.Writer, fn func(*app.App) error) (err error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.metrics {
		cfg.Metrics.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := app.New(cfg, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()

	if err := fn(a); err != nil {
		return err
	}
	if flags.metrics {
		return a.WriteMetrics(stderr)
	}
	return nil
}
