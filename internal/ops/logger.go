// Package ops provides the structured logging interface used throughout the
// compiler and executor. Components log through Logger rather than calling
// logrus directly, so tests can inject a capturing implementation.
package ops

import (
	"github.com/sirupsen/logrus"
)

// Logger publishes structured log events tagged with a statement or
// operation id. It is implemented by *logrusLogger in production and by
// fakes in tests.
type Logger interface {
	// Log writes a single event at the given level with the given fields.
	Log(level logrus.Level, fields logrus.Fields, message string)
	// Level returns the currently configured level filter.
	Level() logrus.Level
	// WithFields returns a Logger that adds the given fields to every event
	// it publishes, in addition to whatever fields the caller supplies.
	WithFields(fields logrus.Fields) Logger
}

// NewLogrus returns a Logger backed by a *logrus.Logger at the given level.
func NewLogrus(level logrus.Level) Logger {
	var base = logrus.New()
	base.SetLevel(level)
	return &logrusLogger{delegate: base, add: logrus.Fields{}}
}

type logrusLogger struct {
	delegate *logrus.Logger
	add      logrus.Fields
}

func (l *logrusLogger) Log(level logrus.Level, fields logrus.Fields, message string) {
	var entry = l.delegate.WithFields(l.add)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Log(level, message)
}

func (l *logrusLogger) Level() logrus.Level {
	return l.delegate.GetLevel()
}

func (l *logrusLogger) WithFields(fields logrus.Fields) Logger {
	var merged = make(logrus.Fields, len(l.add)+len(fields))
	for k, v := range l.add {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &logrusLogger{delegate: l.delegate, add: merged}
}

// Discard is a Logger that drops every event. Useful as a default for
// components constructed without an explicit logger (e.g. in tests).
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Log(logrus.Level, logrus.Fields, string) {}
func (discardLogger) Level() logrus.Level                     { return logrus.PanicLevel }
func (discardLogger) WithFields(logrus.Fields) Logger          { return discardLogger{} }
