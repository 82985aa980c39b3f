// Package logging provides the structured Logger interface used throughout
// the association engine, backed by logrus with a pretty formatter in the
// shape of OPA's internal/logging package.
package logging

import (
	"bytes"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields map[string]any

// Logger is the logging surface the orchestrator, catalog adapter, and CLI
// depend on. Passed explicitly rather than reached for as a package global.
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	WithFields(fields Fields) Logger
	SetLevel(level string) error
	GetLevel() string
}

// StandardLogger wraps a logrus.Entry.
type StandardLogger struct {
	entry *logrus.Entry
}

// NewStandardLogger builds a StandardLogger writing to w, defaulting to the
// "info" level and the "pretty" formatter.
func NewStandardLogger(w io.Writer) *StandardLogger {
	if w == nil {
		w = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(GetFormatter("pretty", ""))
	return &StandardLogger{entry: logrus.NewEntry(l)}
}

func (s *StandardLogger) Debug(args ...any) { s.entry.Debug(args...) }
func (s *StandardLogger) Info(args ...any)  { s.entry.Info(args...) }
func (s *StandardLogger) Warn(args ...any)  { s.entry.Warn(args...) }
func (s *StandardLogger) Error(args ...any) { s.entry.Error(args...) }

func (s *StandardLogger) WithFields(fields Fields) Logger {
	return &StandardLogger{entry: s.entry.WithFields(logrus.Fields(fields))}
}

func (s *StandardLogger) SetLevel(level string) error {
	lvl, err := GetLevel(level)
	if err != nil {
		return err
	}
	s.entry.Logger.SetLevel(lvl)
	return nil
}

func (s *StandardLogger) GetLevel() string {
	return s.entry.Logger.GetLevel().String()
}

// SetFormat switches the underlying formatter ("text", "json", "json-pretty", "pretty").
func (s *StandardLogger) SetFormat(format, timestampFormat string) {
	s.entry.Logger.SetFormatter(GetFormatter(format, timestampFormat))
}

// GetLevel maps a level name to a logrus.Level, the way
// internal/logging.GetLevel does.
func GetLevel(level string) (logrus.Level, error) {
	return logrus.ParseLevel(level)
}

// GetFormatter returns the logrus.Formatter for the named format, defaulting
// to the pretty formatter for anything unrecognized.
func GetFormatter(format, timestampFormat string) logrus.Formatter {
	switch format {
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: timestampFormat}
	case "json-pretty":
		return &logrus.JSONFormatter{TimestampFormat: timestampFormat, PrettyPrint: true}
	case "text":
		return &logrus.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true}
	default:
		return &prettyFormatter{}
	}
}

// prettyFormatter renders level, message, and fields on one line, matching
// the compact human-readable shape of internal/logging's pretty formatter.
type prettyFormatter struct{}

func (f *prettyFormatter) Format(e *logrus.Entry) ([]byte, error) {
	buf := e.Buffer
	if buf == nil {
		buf = new(bytes.Buffer)
	}
	level := e.Level.String()
	buf.WriteString(level[:4])
	buf.WriteString("[")
	buf.WriteString(e.Time.Format("15:04:05.000"))
	buf.WriteString("] ")
	buf.WriteString(e.Message)
	for k, v := range e.Data {
		buf.WriteString(" ")
		buf.WriteString(k)
		buf.WriteString("=")
		buf.WriteString(toString(v))
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return logrus.Fields{"v": v}.String()
}

// NoOpLogger discards everything; used in tests and library call sites that
// don't want to configure a logger.
type NoOpLogger struct{}

func (NoOpLogger) Debug(args ...any)         {}
func (NoOpLogger) Info(args ...any)          {}
func (NoOpLogger) Warn(args ...any)          {}
func (NoOpLogger) Error(args ...any)         {}
func (n NoOpLogger) WithFields(Fields) Logger { return n }
func (NoOpLogger) SetLevel(string) error     { return nil }
func (NoOpLogger) GetLevel() string          { return "" }
