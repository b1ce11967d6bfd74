package log

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

func init() {
	configure(logrus.StandardLogger(), os.Stdout)
}

// configure applies the shared formatter and the level taken from LOG_LEVEL / DEBUG.
func configure(l *logrus.Logger, out io.Writer) {
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableQuote:    true,
		TimestampFormat: timestampFormat,
	})
	l.SetLevel(levelFromEnv())
	l.SetOutput(out)
}

func levelFromEnv() logrus.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "TRACE":
		return logrus.TraceLevel
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	}
	if os.Getenv("DEBUG") != "" {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

// SetLevel overrides the level picked from the environment, "info" if lvl is unknown.
func SetLevel(lvl string) {
	level, err := logrus.ParseLevel(lvl)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func IsDebug() bool {
	return logrus.IsLevelEnabled(logrus.DebugLevel)
}

// withCaller appends "call:file:line" of the caller's caller when debug is on.
func withCaller(format string, args []interface{}) (string, []interface{}) {
	if !IsDebug() {
		return format, args
	}
	_, file, line, _ := runtime.Caller(2)
	return format + " call:%s:%d", append(args, file, line)
}

func Debugf(format string, args ...interface{}) {
	if !IsDebug() {
		return
	}
	format, args = withCaller(format, args)
	logrus.Debugf(format, args...)
}

func Tracef(format string, args ...interface{}) {
	format, args = withCaller(format, args)
	logrus.Tracef(format, args...)
}

func Infof(format string, args ...interface{}) {
	format, args = withCaller(format, args)
	logrus.Infof(format, args...)
}

func Info(args ...interface{}) {
	logrus.Info(args...)
}

func Warnf(format string, args ...interface{}) {
	format, args = withCaller(format, args)
	logrus.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	format, args = withCaller(format, args)
	logrus.Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	format, args = withCaller(format, args)
	logrus.Fatalf(format, args...)
}

func Println(args ...interface{}) {
	logrus.Println(args...)
}
