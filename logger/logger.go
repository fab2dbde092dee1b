// Package logger provides the logging abstraction used by go-ecat, allowing applications to
// plug in their preferred logging implementation.
//
// The Logger interface logs messages at several severity levels (Debug, Info, Warn, Error, Fatal)
// with structured key-value pairs. The default implementation is backed by log/slog.
//
// Log Levels:
//
//   - DebugLevel: per-cycle and per-poll details, usually disabled in production.
//   - InfoLevel: lifecycle transitions and recovery results.
//   - WarnLevel: devices that left the Operational state.
//   - ErrorLevel: lost devices, failed transitions.
//   - FatalLevel: critical errors that terminate the program.
package logger

// Level indicates the logging severity level.
type Level int8

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel Level = iota - 1
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual
	// human review.
	WarnLevel
	// ErrorLevel logs are high-priority. If the device chain is healthy,
	// it shouldn't generate any error-level logs.
	ErrorLevel
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name to a Level. Unknown names map to InfoLevel and false.
func ParseLevel(name string) (Level, bool) {
	switch name {
	case "debug":
		return DebugLevel, true
	case "info", "":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	case "fatal":
		return FatalLevel, true
	default:
		return InfoLevel, false
	}
}

// Logger defines a common interface for logging.
type Logger interface {
	// Debug logs a message at DebugLevel.
	Debug(msg string, keysAndValues ...any)
	// Info logs a message at InfoLevel.
	Info(msg string, keysAndValues ...any)
	// Warn logs a message at WarnLevel.
	Warn(msg string, keysAndValues ...any)
	// Error logs a message at ErrorLevel.
	Error(msg string, keysAndValues ...any)
	// Fatal logs a message at FatalLevel, then calls os.Exit(1).
	Fatal(msg string, keysAndValues ...any)
	// With creates a child logger and adds structured context to it.
	// Key-values added to the child don't affect the parent, and vice versa.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level for this logger.
	Level() Level
	// SetLevel sets the minimum enabled level for this logger.
	SetLevel(level Level)
}
