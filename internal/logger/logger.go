// Package logger provides the structured logging handle the engine is
// constructed with (spec.md §6, "a parsed configuration and a logging
// handle"). A logrus-backed implementation is used in production; a
// dependency-free one backs unit tests that don't want logrus's global
// state.
package logger

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the handle every pipeline stage logs through.
type Logger interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string, err error)
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// SimpleLogger writes to the standard library's log package. It exists
// for tests and for environments where pulling in logrus's global state
// is undesirable.
type SimpleLogger struct {
	fields map[string]interface{}
}

// NewSimple constructs a SimpleLogger.
func NewSimple() Logger {
	return &SimpleLogger{fields: make(map[string]interface{})}
}

func (l *SimpleLogger) Info(msg string) {
	if len(l.fields) > 0 {
		log.Printf("INFO: %s %v", msg, l.fields)
	} else {
		log.Printf("INFO: %s", msg)
	}
}

func (l *SimpleLogger) Warn(msg string) {
	if len(l.fields) > 0 {
		log.Printf("WARN: %s %v", msg, l.fields)
	} else {
		log.Printf("WARN: %s", msg)
	}
}

func (l *SimpleLogger) Error(msg string, err error) {
	if len(l.fields) > 0 {
		fmt.Fprintf(os.Stderr, "ERROR: %s: %v %v\n", msg, err, l.fields)
	} else {
		fmt.Fprintf(os.Stderr, "ERROR: %s: %v\n", msg, err)
	}
}

func (l *SimpleLogger) WithField(key string, value interface{}) Logger {
	newFields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		newFields[k] = v
	}
	newFields[key] = value
	return &SimpleLogger{fields: newFields}
}

func (l *SimpleLogger) WithFields(fields map[string]interface{}) Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &SimpleLogger{fields: newFields}
}

// LogrusLogger is the production Logger, backed by logrus.
type LogrusLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
}

// NewLogrus constructs a LogrusLogger with text-formatted, timestamped
// output on stderr, at info level.
func NewLogrus() Logger {
	return NewLogrusWithLevel("info")
}

// NewLogrusWithLevel is NewLogrus with an explicit level (debug, info,
// warn, error); an unrecognized level falls back to info.
func NewLogrusWithLevel(level string) Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if parsed, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(parsed)
	}
	return &LogrusLogger{logger: l, entry: logrus.NewEntry(l)}
}

func (l *LogrusLogger) Info(msg string) { l.entry.Info(msg) }
func (l *LogrusLogger) Warn(msg string) { l.entry.Warn(msg) }

func (l *LogrusLogger) Error(msg string, err error) {
	l.entry.WithError(err).Error(msg)
}

func (l *LogrusLogger) WithField(key string, value interface{}) Logger {
	return &LogrusLogger{logger: l.logger, entry: l.entry.WithField(key, value)}
}

func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{logger: l.logger, entry: l.entry.WithFields(fields)}
}
