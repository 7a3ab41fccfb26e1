// Package config loads runloop settings from a file and the environment.
//
// Settings are resolved in three steps, each overriding the previous:
// built-in defaults, an optional TOML, YAML or JSON file, and environment
// variables prefixed with RUNLOOP_ (for example RUNLOOP_LOG_LEVEL or
// RUNLOOP_METRICS_ENABLED).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/runloop/internal/logging"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "RUNLOOP_"

// Config holds all runloop settings.
type Config struct {
	Log        Log        `toml:"log" yaml:"log" json:"log" envPrefix:"LOG_"`
	Dispatcher Dispatcher `toml:"dispatcher" yaml:"dispatcher" json:"dispatcher" envPrefix:"DISPATCHER_"`
	Metrics    Metrics    `toml:"metrics" yaml:"metrics" json:"metrics" envPrefix:"METRICS_"`
	Tracing    Tracing    `toml:"tracing" yaml:"tracing" json:"tracing" envPrefix:"TRACING_"`
	Script     Script     `toml:"script" yaml:"script" json:"script" envPrefix:"SCRIPT_"`
}

// Log configures the process logger.
type Log struct {
	Level  string `toml:"level" yaml:"level" json:"level" env:"LEVEL"`
	Format string `toml:"format" yaml:"format" json:"format" env:"FORMAT"`
}

// Dispatcher configures the event dispatcher.
type Dispatcher struct {
	QueueCapacity int `toml:"queue_capacity" yaml:"queue_capacity" json:"queue_capacity" env:"QUEUE_CAPACITY"`
}

// Metrics configures Prometheus instrumentation.
type Metrics struct {
	Enabled   bool   `toml:"enabled" yaml:"enabled" json:"enabled" env:"ENABLED"`
	Namespace string `toml:"namespace" yaml:"namespace" json:"namespace" env:"NAMESPACE"`
}

// Tracing configures OpenTelemetry spans.
type Tracing struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled" json:"enabled" env:"ENABLED"`
	TracerName string `toml:"tracer_name" yaml:"tracer_name" json:"tracer_name" env:"TRACER_NAME"`
}

// Script configures the Lua script host. Zero sizes keep the gopher-lua
// defaults.
type Script struct {
	CallStackSize int `toml:"call_stack_size" yaml:"call_stack_size" json:"call_stack_size" env:"CALL_STACK_SIZE"`
	RegistrySize  int `toml:"registry_size" yaml:"registry_size" json:"registry_size" env:"REGISTRY_SIZE"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Log: Log{
			Level:  "info",
			Format: logging.FormatConsole,
		},
		Dispatcher: Dispatcher{
			QueueCapacity: 64,
		},
		Metrics: Metrics{
			Namespace: "runloop",
		},
		Tracing: Tracing{
			TracerName: "github.com/dshills/runloop",
		},
	}
}

// Load resolves the configuration. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// decodeFile decodes path over cfg, choosing the decoder by extension.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			perr := &ParseError{Path: path, Err: err}
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				perr.Line, perr.Column = derr.Position()
			}
			return perr
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return &ParseError{Path: path, Err: err}
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return &ParseError{Path: path, Err: err}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return nil
}

// Validate checks every setting and returns the first invalid one.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &ValidationError{Path: "log.level", Message: "unknown level", Value: c.Log.Level}
	}
	if !logging.ValidFormat(c.Log.Format) {
		return &ValidationError{Path: "log.format", Message: "must be console or json", Value: c.Log.Format}
	}
	if c.Dispatcher.QueueCapacity < 0 {
		return &ValidationError{Path: "dispatcher.queue_capacity", Message: "must not be negative", Value: c.Dispatcher.QueueCapacity}
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return &ValidationError{Path: "metrics.namespace", Message: "required when metrics are enabled", Value: c.Metrics.Namespace}
	}
	if c.Script.CallStackSize < 0 {
		return &ValidationError{Path: "script.call_stack_size", Message: "must not be negative", Value: c.Script.CallStackSize}
	}
	if c.Script.RegistrySize < 0 {
		return &ValidationError{Path: "script.registry_size", Message: "must not be negative", Value: c.Script.RegistrySize}
	}
	return nil
}
