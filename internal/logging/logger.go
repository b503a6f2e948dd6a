package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with field helpers used across handlers and services
type Logger struct {
	*slog.Logger
}

// NewLogger writes human-readable text in development and JSON otherwise
func NewLogger(development bool) *Logger {
	return New(os.Stdout, development)
}

// New builds a Logger on top of an arbitrary writer
func New(w io.Writer, development bool) *Logger {
	var handler slog.Handler
	if development {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// WithFields returns a child logger carrying the given attributes
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.Logger.With(args...)}
}

// Discard is a logger that drops everything, handy in tests
func Discard() *Logger {
	return New(io.Discard, false)
}
