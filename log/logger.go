package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Debugf(format string, args ...interface{})
	Debugln(args ...interface{})
	Infof(format string, args ...interface{})
	Infoln(args ...interface{})
	Warnf(format string, args ...interface{})
	Warnln(args ...interface{})
	Warningf(string, ...interface{})
	Errorf(format string, args ...interface{})
	Errorln(args ...interface{})
	Panic(args ...interface{})
	Writer() *io.PipeWriter
	WithFields(fields logrus.Fields) *logrus.Entry
}

func DefaultLogger() Logger {
	logrus.SetLevel(logrus.InfoLevel)
	return logrus.StandardLogger()
}

// WithLevel builds a standalone logger at the given level using the
// package formatter. The level string follows logrus conventions
// ("debug", "info", "warn", ...); an unknown level falls back to info.
func WithLevel(level string) Logger {
	l := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	l.SetFormatter(&Formatter{})
	return l
}
