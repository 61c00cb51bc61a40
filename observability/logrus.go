package observability

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts a logrus entry to the Logger interface.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps an existing logrus logger.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

func (l *LogrusLogger) Debug(msg string, fields ...Field) { l.withFields(fields).Debug(msg) }
func (l *LogrusLogger) Info(msg string, fields ...Field)  { l.withFields(fields).Info(msg) }
func (l *LogrusLogger) Warn(msg string, fields ...Field)  { l.withFields(fields).Warn(msg) }
func (l *LogrusLogger) Error(msg string, fields ...Field) { l.withFields(fields).Error(msg) }

func (l *LogrusLogger) With(fields ...Field) Logger {
	return &LogrusLogger{entry: l.withFields(fields)}
}

func (l *LogrusLogger) withFields(fields []Field) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	lf := make(logrus.Fields, len(fields))
	for _, f := range fields {
		lf[f.Key()] = f.Value()
	}
	return l.entry.WithFields(lf)
}

var (
	defaultOnce   sync.Once
	defaultLogger Logger
)

// Default returns the process-wide logger, a logrus logger at Info level.
func Default() Logger {
	defaultOnce.Do(func() {
		base := logrus.New()
		base.SetLevel(logrus.InfoLevel)
		defaultLogger = NewLogrusLogger(base)
	})
	return defaultLogger
}
