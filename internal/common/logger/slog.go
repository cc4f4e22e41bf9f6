// Package logger configures structured logging and line-oriented JSON
// event output. All diagnostics go to stderr; stdout belongs to envelopes.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Setup configures a structured logger writing to stderr.
// Valid levels are: debug, info, warn, error. If verbose is true, the
// level is forced to debug regardless of logLevel.
func Setup(verbose bool, logLevel string) *slog.Logger {
	level := ParseLevel(logLevel)
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler)
}

// ParseLevel converts a string log level to slog.Level.
// Defaults to Info if an invalid level is provided.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs a debug message if the logger is non-nil.
func Debug(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// Info logs an informational message if the logger is non-nil.
func Info(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

// Warn logs a warning message if the logger is non-nil.
func Warn(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// Error logs an error message if the logger is non-nil.
func Error(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}
