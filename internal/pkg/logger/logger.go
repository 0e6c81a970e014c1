package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New creates a zerolog logger. format "json" writes JSON lines, anything else a console writer.
func New(level, format string) zerolog.Logger {
	var writer io.Writer = os.Stdout
	if !strings.EqualFold(format, "json") {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(writer).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// Init builds the logger and installs it as the global log.Logger used by handlers and middleware.
func Init(level, format string) zerolog.Logger {
	l := New(level, format)
	log.Logger = l
	return l
}
