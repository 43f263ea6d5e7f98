package common

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LogLevel represents logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return "info"
	}
}

// ToSlogLevel converts LogLevel to slog.Level
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Logger provides a centralized logging interface for cgirun.
// Logs go to stderr by default: stdout of the CLI carries response bodies.
type Logger struct {
	*slog.Logger
	level  LogLevel
	masker *Masker
}

func newLogger(handler slog.Handler, level LogLevel, masker *Masker) *Logger {
	return &Logger{Logger: slog.New(handler), level: level, masker: masker}
}

// NewLogger creates a new structured text logger with the specified level
func NewLogger(level LogLevel) *Logger {
	return NewLoggerTo(os.Stderr, level)
}

// NewLoggerTo creates a text logger writing to w.
func NewLoggerTo(w io.Writer, level LogLevel) *Logger {
	masker := NewMasker()
	opts := &slog.HandlerOptions{
		Level:       level.ToSlogLevel(),
		ReplaceAttr: maskReplaceAttr(masker),
	}
	return newLogger(slog.NewTextHandler(w, opts), level, masker)
}

// NewJSONLogger creates a structured logger with JSON output
func NewJSONLogger(level LogLevel) *Logger {
	return NewJSONLoggerTo(os.Stderr, level)
}

// NewJSONLoggerTo creates a JSON logger writing to w.
func NewJSONLoggerTo(w io.Writer, level LogLevel) *Logger {
	masker := NewMasker()
	opts := &slog.HandlerOptions{
		Level:       level.ToSlogLevel(),
		ReplaceAttr: maskReplaceAttr(masker),
	}
	return newLogger(slog.NewJSONHandler(w, opts), level, masker)
}

// NewColorLogger creates a logger with the colorized text handler
func NewColorLogger(level LogLevel) *Logger {
	h := NewColorHandler(os.Stderr, &slog.HandlerOptions{Level: level.ToSlogLevel()})
	return newLogger(h, level, h.masker)
}

// maskReplaceAttr hides values of sensitive keys in the standard handlers.
func maskReplaceAttr(m *Masker) func(groups []string, a slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		if m == nil || !m.IsEnabled() {
			return a
		}
		if m.IsSensitiveKey(a.Key) {
			return slog.String(a.Key, maskedValue)
		}
		if a.Value.Kind() == slog.KindString {
			return slog.String(a.Key, m.MaskString(a.Value.String()))
		}
		return a
	}
}

// Level returns the current log level
func (l *Logger) Level() LogLevel {
	return l.level
}

// EnableMasking toggles masking of sensitive attributes for this logger.
func (l *Logger) EnableMasking(enabled bool) {
	if l.masker != nil {
		l.masker.SetEnabled(enabled)
	}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level, masker: l.masker}
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithRequest returns a logger with simulated request context
func (l *Logger) WithRequest(method, script string) *Logger {
	return l.with("method", method, "script", script)
}

// WithScenario returns a logger with scenario file context
func (l *Logger) WithScenario(name string, version int) *Logger {
	return l.with("scenario", name, "version", version)
}

// WithAuth returns a logger with authentication context
func (l *Logger) WithAuth(authName string) *Logger {
	return l.with("auth", authName)
}

// WithStore returns a logger with store context
func (l *Logger) WithStore(storeType string) *Logger {
	return l.with("store", storeType)
}

// Enabled reports whether the logger emits records at level.
func (l *Logger) Enabled(level LogLevel) bool {
	return l.Logger.Enabled(context.Background(), level.ToSlogLevel())
}

// Global default logger instance
var defaultLogger = NewLogger(LogLevelInfo)

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	if logger == nil {
		return
	}
	defaultLogger = logger
}

// GetLogger returns the default logger
func GetLogger() *Logger {
	return defaultLogger
}

// LogError logs an error with context
func LogError(msg string, err error, attrs ...any) {
	args := append([]any{"error", err}, attrs...)
	defaultLogger.Error(msg, args...)
}

// LogInfo logs informational message
func LogInfo(msg string, attrs ...any) {
	defaultLogger.Info(msg, attrs...)
}

// LogDebug logs debug message
func LogDebug(msg string, attrs ...any) {
	defaultLogger.Debug(msg, attrs...)
}

// LogWarn logs warning message
func LogWarn(msg string, attrs ...any) {
	defaultLogger.Warn(msg, attrs...)
}
