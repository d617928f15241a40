// Package logger provides structured logging for the hook engine.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LogFilePermissions defines the file permissions for log files (owner read/write only).
const LogFilePermissions = 0o600

// logDirPermissions defines the permissions of the log directory.
const logDirPermissions = 0o700

// Logger provides structured logging interface.
type Logger interface {
	// Debug logs debug-level messages with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs info-level messages with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs warning-level messages with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs error-level messages with optional key-value pairs.
	Error(msg string, keysAndValues ...any)

	// With returns a new logger with additional key-value pairs.
	With(keysAndValues ...any) Logger
}

// SlogAdapter implements Logger on top of log/slog.
type SlogAdapter struct {
	logger  *slog.Logger
	handler *CustomHandler
}

// NewSlogAdapter wraps an existing slog handler.
func NewSlogAdapter(h slog.Handler) *SlogAdapter {
	custom, _ := h.(*CustomHandler)

	return &SlogAdapter{
		logger:  slog.New(h),
		handler: custom,
	}
}

// NewFileLogger creates a logger appending to the file at path.
// Missing parent directories are created.
func NewFileLogger(path string, level Level) (*SlogAdapter, error) {
	if err := os.MkdirAll(filepath.Dir(path), logDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	h, err := NewFileHandler(path, level)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return NewSlogAdapter(h), nil
}

// NewWriterLogger creates a logger writing to w.
func NewWriterLogger(w io.Writer, level Level) *SlogAdapter {
	return NewSlogAdapter(NewWriterHandler(w, level))
}

// Debug logs debug-level messages.
func (l *SlogAdapter) Debug(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

// Info logs info-level messages.
func (l *SlogAdapter) Info(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

// Warn logs warning-level messages.
func (l *SlogAdapter) Warn(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

// Error logs error-level messages.
func (l *SlogAdapter) Error(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelError, msg, keysAndValues...)
}

// With returns a new logger with additional base key-value pairs.
//
//nolint:ireturn // With is intended to return an interface for chaining
func (l *SlogAdapter) With(keysAndValues ...any) Logger {
	return &SlogAdapter{
		logger:  l.logger.With(keysAndValues...),
		handler: l.handler,
	}
}

// Close closes the underlying file, if any.
func (l *SlogAdapter) Close() error {
	if l.handler == nil {
		return nil
	}

	return l.handler.Close()
}

// NoOpLogger is a logger that does nothing.
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Debug does nothing.
func (*NoOpLogger) Debug(string, ...any) {}

// Info does nothing.
func (*NoOpLogger) Info(string, ...any) {}

// Warn does nothing.
func (*NoOpLogger) Warn(string, ...any) {}

// Error does nothing.
func (*NoOpLogger) Error(string, ...any) {}

// With returns the same NoOpLogger.
//
//nolint:ireturn // With is intended to return an interface for chaining
func (n *NoOpLogger) With(...any) Logger {
	return n
}
