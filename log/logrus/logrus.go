package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/memlock"
)

var _ memlock.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New wraps l, tagging every entry with component=memlock.
// A nil l uses the logrus standard logger.
func New(l *logrus.Logger) LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return LogrusLogger{E: l.WithField("component", "memlock")}
}

func (l LogrusLogger) Debug(msg string, f memlock.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f memlock.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f memlock.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f memlock.Fields) { l.with(f).Error(msg) }

// with moves an "err" field to logrus.ErrorKey so formatters render it.
func (l LogrusLogger) with(f memlock.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
