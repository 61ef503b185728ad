// Package logging builds the shared zerolog.Logger used by all three
// binaries, tagging each with its process role and mapping the error
// taxonomy onto structured fields.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a Logger tagged with role ("parent", "session", or "client").
// debug selects a human-readable ConsoleWriter (foreground/-d runs);
// otherwise lines are plain JSON, the shape a supervisor would capture into
// its own log pipeline.
func New(role string, debug bool) zerolog.Logger {
	var w zerolog.Logger
	if debug {
		cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		w = zerolog.New(cw)
	} else {
		w = zerolog.New(os.Stderr)
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return w.Level(level).With().Timestamp().Str("role", role).Logger()
}

// Taxonomy names the error classes, attached as a "kind" field so a
// structured-log consumer can filter by failure category without parsing
// the message text.
type Taxonomy string

const (
	ConfigError       Taxonomy = "ConfigError"
	InitError         Taxonomy = "InitError"
	IpcError          Taxonomy = "IpcError"
	NetworkError      Taxonomy = "NetworkError"
	TimerError        Taxonomy = "TimerError"
	ChildExitError    Taxonomy = "ChildExitError"
	ShutdownExecError Taxonomy = "ShutdownExecError"
)
