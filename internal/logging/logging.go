package logging

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a zerolog logger configured for stdout at info level.
func New() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// NewWithLevel returns a stdout logger filtered to the given level name.
// Unknown names fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	// zerolog.ParseLevel accepts bare integers; only named levels count here.
	if _, err := strconv.Atoi(name); err == nil {
		return New()
	}
	parsed, err := zerolog.ParseLevel(name)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return New().Level(parsed)
}
