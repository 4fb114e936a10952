// Package logging builds the structured logger shared by the orchestrator.
package logging

import (
	"io"
	"strings"

	"github.com/phuslu/log"
)

// Options configures New.
type Options struct {
	Level   string
	Console bool
	Color   bool
	RunID   string
}

// New returns a logger writing to w. Console output is human readable;
// otherwise each entry is a JSON line.
func New(w io.Writer, opts Options) *log.Logger {
	logger := &log.Logger{
		Level:      ParseLevel(opts.Level),
		TimeFormat: "15:04:05",
	}
	if opts.Console {
		logger.Writer = &log.ConsoleWriter{
			Writer:         w,
			ColorOutput:    opts.Color,
			QuoteString:    true,
			EndWithMessage: true,
		}
	} else {
		logger.TimeFormat = ""
		logger.Writer = &log.IOWriter{Writer: w}
	}
	if opts.RunID != "" {
		logger.Context = log.NewContext(nil).Str("run", opts.RunID).Value()
	}
	return logger
}

// Discard returns a logger that drops every entry.
func Discard() *log.Logger {
	return &log.Logger{Level: log.PanicLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

// ParseLevel maps a level name to a log level, defaulting to info.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ValidLevel reports whether s names a supported level.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
