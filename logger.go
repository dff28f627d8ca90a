package outnet

import (
	"github.com/sirupsen/logrus"
)

// Logger provides structured logging throughout the dispatcher.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
}

// Field represents a structured logging field (key-value pair).
// Used to attach context to log messages.
type Field struct {
	Key   string
	Value interface{}
}

// noopLogger is the default logger that silently discards all log messages.
// This allows the library to have zero logging overhead when not needed.
type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...Field)            {}
func (noopLogger) Info(msg string, fields ...Field)             {}
func (noopLogger) Error(msg string, err error, fields ...Field) {}

// logrusLogger adapts a *logrus.Logger to the Logger interface.
type logrusLogger struct {
	l *logrus.Logger
}

// NewLogrusLogger returns a Logger backed by the given logrus logger.
//
// Example:
//
//	log := logrus.New()
//	log.SetLevel(logrus.DebugLevel)
//	d, err := outnet.New(outnet.WithLogger(outnet.NewLogrusLogger(log)))
func NewLogrusLogger(l *logrus.Logger) Logger {
	return &logrusLogger{l: l}
}

func (a *logrusLogger) Debug(msg string, fields ...Field) {
	a.l.WithFields(logrusFields(fields)).Debug(msg)
}

func (a *logrusLogger) Info(msg string, fields ...Field) {
	a.l.WithFields(logrusFields(fields)).Info(msg)
}

func (a *logrusLogger) Error(msg string, err error, fields ...Field) {
	a.l.WithFields(logrusFields(fields)).WithError(err).Error(msg)
}

func logrusFields(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}
