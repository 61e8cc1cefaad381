package hsg

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with hsg-specific context, giving every log line
// a consistent set of field names regardless of handler.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses a default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithID adds an id field to the logger.
func (l *Logger) WithID(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("id", id),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(id uint64, dimension int, err error) {
	if err != nil {
		l.Error("insert failed",
			"id", id,
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.Debug("insert completed",
			"id", id,
			"dimension", dimension,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(k, magnification, resultsFound int, err error) {
	if err != nil {
		l.Error("search failed",
			"k", k,
			"magnification", magnification,
			"error", err,
		)
	} else {
		l.Debug("search completed",
			"k", k,
			"magnification", magnification,
			"results", resultsFound,
		)
	}
}
