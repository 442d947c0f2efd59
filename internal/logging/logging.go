// Package logging configures the zerolog logger used throughout the
// gantry CLI.
//
// Pipeline output is inherently human-facing — a developer watches the
// stage log scroll by — so the default format is the zerolog console
// writer. The --json flag switches to plain JSON lines on stderr for
// machine consumption, keeping stdout reserved for command output.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger for a CLI invocation.
//
// verbose lowers the level to Debug, which includes per-step command
// output. jsonOutput disables the console writer so log lines are raw
// JSON.
func New(verbose, jsonOutput bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	var w io.Writer = os.Stderr
	if !jsonOutput {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
