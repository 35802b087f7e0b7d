// Package logging bootstraps the process-wide zerolog logger, matching
// the teacher's console-writer-to-stderr startup in cmd/pulse/main.go.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. Pretty-printing is used
// unless json is true, matching how the teacher distinguishes local dev
// runs from production log shipping.
func Init(level string, json bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if json {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// Component returns a logger pre-tagged with a "component" field, the
// pattern used throughout cmd/pulse/metrics_server.go.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
