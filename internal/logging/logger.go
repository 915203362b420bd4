package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds the structured logger shared by all components.
// Level is parsed from the given string ("debug", "info", "warn", "error");
// unknown levels fall back to info. A nil writer means stderr.
func New(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = true

	if w == nil {
		w = os.Stderr
	}
	if format != FormatJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", "co-streamer").
		Logger()
}

// Component derives a child logger tagged with the component name
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
