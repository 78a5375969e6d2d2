// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps a slog.Logger so the service can pass a single logging handle around.
type Logger struct {
	*slog.Logger
}

// New returns a Logger writing text records to stderr at the given level.
func New(level slog.Level) *Logger {
	return NewLogger(level, os.Stderr)
}

// NewLogger returns a Logger writing text records to the given writer at the given level.
func NewLogger(level slog.Level, output io.Writer) *Logger {
	return &Logger{slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))}
}

// Err returns a slog attribute for the given error.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}

// Discard returns a Logger that drops every record.
func Discard() *Logger {
	return NewLogger(slog.LevelError, io.Discard)
}

// Component returns a child Logger that tags every record with the given component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{l.With(slog.String("component", name))}
}
