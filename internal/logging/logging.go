// Package logging constructs the zerolog logger shared across the probe
// pipeline's diagnostic output: one structured, timestamped sink, with a
// level tied to the --debug flag.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Options controls New's output destination and verbosity.
type Options struct {
	// Debug raises the level to zerolog.DebugLevel; otherwise
	// zerolog.InfoLevel.
	Debug bool

	// FilePath, when non-empty, appends (creating if needed) to a log
	// file in addition to stdout. The CLI commands leave it empty, so
	// their logs go to stdout only.
	FilePath string
}

// New builds a zerolog.Logger per Options, matching the
// `zerolog.New(w).With().Timestamp().Logger()` construction used
// throughout this program's HTTP layer.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	var w io.Writer = os.Stdout
	if opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Logger{}, err
		}
		w = io.MultiWriter(os.Stdout, f)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
