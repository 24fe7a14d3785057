package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConfigureLogging sets up the global zerolog logger for a binary. format
// "console" selects human readable output; anything else emits JSON.
func ConfigureLogging(service, level, format string) {
	ConfigureLoggingTo(os.Stderr, service, level, format)
}

// ConfigureLoggingTo is ConfigureLogging with an explicit destination.
func ConfigureLoggingTo(out io.Writer, service, level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("service", service).Logger()
}
