// Package logging builds the process logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ErrUnknownLevel is returned by ParseLevel for unrecognized level names.
var ErrUnknownLevel = errors.New("unknown log level")

// ErrUnknownFormat is returned by New for unrecognized formats.
var ErrUnknownFormat = errors.New("unknown log format")

// ParseLevel parses a level name. The empty string means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "off", "disabled":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// ValidFormat reports whether format names a supported output format.
// The empty string selects the console format.
func ValidFormat(format string) bool {
	switch format {
	case "", FormatConsole, FormatJSON:
		return true
	}
	return false
}

// New creates a logger writing to w at the given level and format.
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if !ValidFormat(format) {
		return zerolog.Nop(), fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if format != FormatJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
