// Package log provides structured logging for datacore, wrapping
// logrus with module-scoped child loggers, following the teacher's
// Logger/Module/With convention but backed by an ecosystem logger
// instead of log/slog.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Entry with datacore-specific conveniences.
type Logger struct {
	entry *logrus.Entry
}

var defaultLogger *Logger

func init() {
	defaultLogger = New(logrus.InfoLevel)
}

// New creates a Logger that writes structured text to stderr at the
// given level.
func New(level logrus.Level) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{entry: logrus.NewEntry(l)}
}

// NewWithFormatter creates a Logger using a caller-supplied logrus
// formatter, useful for tests or structured (JSON) output.
func NewWithFormatter(level logrus.Level, formatter logrus.Formatter) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	l.SetFormatter(formatter)
	return &Logger{entry: logrus.NewEntry(l)}
}

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the current package-level default logger.
func Default() *Logger {
	return defaultLogger
}

// Module returns a child logger carrying an additional "module" field.
// This is the primary way subsystems (core, wire, replication, ...)
// obtain their own contextual logger.
func (l *Logger) Module(name string) *Logger {
	return &Logger{entry: l.entry.WithField("module", name)}
}

// With returns a child logger with additional key-value context. args
// must be an even-length list of alternating keys and values, matching
// the teacher's slog-style call convention.
func (l *Logger) With(args ...any) *Logger {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return &Logger{entry: l.entry.WithFields(fields)}
}

func (l *Logger) Debug(msg string, args ...any) { l.With(args...).entry.Debug(msg) }
func (l *Logger) Info(msg string, args ...any)  { l.With(args...).entry.Info(msg) }
func (l *Logger) Warn(msg string, args ...any)  { l.With(args...).entry.Warn(msg) }
func (l *Logger) Error(msg string, args ...any) { l.With(args...).entry.Error(msg) }

// ---------------------------------------------------------------------------
// Package-level convenience functions -- delegate to defaultLogger.
// ---------------------------------------------------------------------------

func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }
func Info(msg string, args ...any)  { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...any)  { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }
