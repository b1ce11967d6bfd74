package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is what components take as a dependency instead of the package functions.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

type LoggerImpl struct {
	entry *logrus.Entry
}

func (l *LoggerImpl) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *LoggerImpl) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *LoggerImpl) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *LoggerImpl) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *LoggerImpl) WithField(key string, value interface{}) Logger {
	return &LoggerImpl{entry: l.entry.WithField(key, value)}
}

func (l *LoggerImpl) WithFields(fields map[string]interface{}) Logger {
	return &LoggerImpl{entry: l.entry.WithFields(fields)}
}

// NewLogger returns a logger writing through the standard logrus logger,
// tagged with the component name.
func NewLogger(component string) Logger {
	return &LoggerImpl{entry: logrus.StandardLogger().WithField("component", component)}
}

// NewWriterLogger returns an independent logger writing to out, used by tests
// that assert on log output.
func NewWriterLogger(out io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	configure(l, out)
	l.SetLevel(level)
	return &LoggerImpl{entry: logrus.NewEntry(l)}
}

func NewNopLogger() Logger {
	return NewWriterLogger(io.Discard, logrus.PanicLevel)
}

// Standard exposes the process-wide logrus logger for libraries that accept one.
func Standard() *logrus.Logger {
	l := logrus.StandardLogger()
	if l.Out == nil {
		l.SetOutput(os.Stdout)
	}
	return l
}
