package observability

import "github.com/sirupsen/logrus"

type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrus adapts a logrus logger. Fields become logrus.Fields on every entry.
func NewLogrus(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return logrusLogger{entry: logrus.NewEntry(l)}
}

func (l logrusLogger) fields(fs []Field) *logrus.Entry {
	if len(fs) == 0 {
		return l.entry
	}
	m := make(logrus.Fields, len(fs))
	for _, f := range fs {
		m[f.Key()] = f.Value()
	}
	return l.entry.WithFields(m)
}

func (l logrusLogger) Debug(msg string, fs ...Field) { l.fields(fs).Debug(msg) }
func (l logrusLogger) Info(msg string, fs ...Field)  { l.fields(fs).Info(msg) }
func (l logrusLogger) Warn(msg string, fs ...Field)  { l.fields(fs).Warn(msg) }
func (l logrusLogger) Error(msg string, fs ...Field) { l.fields(fs).Error(msg) }

func (l logrusLogger) With(fs ...Field) Logger {
	return logrusLogger{entry: l.fields(fs)}
}
