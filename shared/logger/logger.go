// Package logger builds the root zerolog logger of a service.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to stdout at level. Pretty output is meant for
// local development.
func New(serviceName, level string, pretty bool) *zerolog.Logger {
	return newLogger(os.Stdout, serviceName, level, pretty)
}

func newLogger(w io.Writer, serviceName, level string, pretty bool) *zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return &logger
}
