// Package logging sets up kstord's global zerolog logger, following
// cmd/lockerd/main.go's console-writer bootstrap plus an optional
// Graylog sink for deployments that want centralized log collection.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger and level. level is one of
// zerolog's string level names (spec.md §6's log_level field); an
// unrecognised value falls back to info, same as zerolog.ParseLevel's
// caller-side convention elsewhere in the stack.
func Setup(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Stamp})
}

// WithGraylog wraps a fresh stdout console writer (the same kind Setup
// installs) in a GraylogWriter and makes it the global logger's output,
// the way an operator would opt into centralized logging in addition to
// the console.
func WithGraylog(url, serviceName, instanceID string) error {
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Stamp}
	w, err := NewGraylogWriter(url, console, serviceName, instanceID)
	if err != nil {
		return err
	}
	log.Logger = log.Output(w)
	return nil
}
