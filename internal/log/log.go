// Package log provides the driver's structured logger: one event per
// backend call, tagged with a correlation ID, built on logrus with
// go-colorable output.
package log

import (
	"io"

	"github.com/google/uuid"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

// New builds the driver's root logger. When stderr is a terminal,
// output goes through go-colorable so field-colored text formatting
// behaves the same on Windows consoles as on ANSI terminals; this is
// cosmetic only and never changes log content.
func New(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(colorable.NewColorableStderr())
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return l
}

// NewRequestID returns a fresh correlation ID for one backend round trip;
// the request client attaches it as the request_id field of that call's
// log line.
func NewRequestID() string {
	return uuid.NewString()
}

// Discard returns a logger that drops everything, for tests that don't
// want log noise but still need to satisfy a *logrus.Logger parameter.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
