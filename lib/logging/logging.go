// Package logging configures the zerolog loggers used across the library.
// Components log through package-level loggers so callers can initialize
// level and format once, from CLI flags or programmatically.
package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggerType selects the output format.
type LoggerType uint8

const (
	ConsoleLogger LoggerType = iota
	JSONLogger
)

// Options for Init.
type Options struct {
	Level zerolog.Level
	Type  LoggerType
}

var (
	// Root is the base logger.
	Root zerolog.Logger
	// Store is the component logger tagged "store". No library code logs
	// through it.
	Store zerolog.Logger
	// Engine logs engine-internal events (migration snapshots and recovery).
	Engine zerolog.Logger
)

func init() {
	// Default to a quiet console logger until Init is called.
	Init(Options{Level: zerolog.WarnLevel, Type: ConsoleLogger})
}

// ParseLevel converts a textual level ("debug", "info", ...) to a
// zerolog.Level.
func ParseLevel(level string) (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(level))
}

// Init configures the package loggers.
func Init(opts Options) {
	switch opts.Type {
	case ConsoleLogger:
		cw := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true, TimeFormat: time.RFC3339}
		cw.FormatLevel = func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-5s|", i))
		}
		Root = zerolog.New(cw).Level(opts.Level).With().Timestamp().Logger()
	default:
		Root = zerolog.New(os.Stderr).Level(opts.Level).With().Timestamp().Logger()
	}
	Store = Root.With().Str("component", "store").Logger()
	Engine = Root.With().Str("component", "engine").Logger()
}
