// Package logger builds the zerolog logger shared by every layer.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a JSON logger writing to stderr at the given level. In
// development the output is switched to zerolog's human-readable console
// writer.
func New(level string, development bool) zerolog.Logger {
	return newWithWriter(os.Stderr, level, development)
}

func newWithWriter(w io.Writer, level string, development bool) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if development {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}
