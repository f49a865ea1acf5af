package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogrusOptions configure NewLogrusLogger.
type LogrusOptions struct {
	// Level is one of debug, info, warning, error. Defaults to info.
	Level string
	// Format is "json" or "text". Defaults to text.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// Fields are attached to every entry.
	Fields map[string]interface{}
}

// LogrusLogger adapts a logrus entry to Logger.
type LogrusLogger struct {
	entry  *logrus.Entry
	closer io.Closer
}

// NewLogrusLogger builds a logrus-backed Logger.
func NewLogrusLogger(opts LogrusOptions) *LogrusLogger {
	l := logrus.New()
	switch strings.ToLower(opts.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stderr)
	}
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	ll := &LogrusLogger{entry: logrus.NewEntry(l).WithFields(logrus.Fields(opts.Fields))}
	if c, ok := opts.Output.(io.Closer); ok && opts.Output != os.Stderr && opts.Output != os.Stdout {
		ll.closer = c
	}
	return ll
}

// WithField returns a logger that adds key to every entry.
func (l *LogrusLogger) WithField(key string, value interface{}) *LogrusLogger {
	return &LogrusLogger{entry: l.entry.WithField(key, value), closer: l.closer}
}

func (l *LogrusLogger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *LogrusLogger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *LogrusLogger) Warning(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *LogrusLogger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Close closes the output when it was supplied as an io.Closer other
// than stdout or stderr.
func (l *LogrusLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	c := l.closer
	l.closer = nil
	return c.Close()
}

var _ Logger = (*LogrusLogger)(nil)
