// Package logging builds the zerolog loggers used across the module.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects level, format and destination.
type Options struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string
	// Format is "console" or "json".
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// New creates a logger with timestamps.
func New(opts Options) (zerolog.Logger, error) {
	levelName := strings.ToLower(opts.Level)
	if levelName == "" {
		levelName = "info"
	}

	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level '%s': %w", opts.Level, err)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(opts.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format '%s'", opts.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Tagged derives a child logger carrying the component tag.
func Tagged(log zerolog.Logger, tag string) zerolog.Logger {
	return log.With().Str("tag", tag).Logger()
}
