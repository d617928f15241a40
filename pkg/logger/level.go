package logger

import (
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidLevel is returned for unrecognized level names.
var ErrInvalidLevel = errors.New("invalid log level")

// Level represents the log level.
type Level string

const (
	// LevelDebug represents debug-level logging (most verbose).
	LevelDebug Level = "debug"

	// LevelInfo represents info-level logging.
	LevelInfo Level = "info"

	// LevelWarn represents warning-level logging. Fail-open diagnostics use it.
	LevelWarn Level = "warn"

	// LevelError represents error-level logging (least verbose).
	LevelError Level = "error"
)

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, nil
	case "warning":
		return LevelWarn, nil
	default:
		return LevelInfo, errors.Wrapf(ErrInvalidLevel, "%q", s)
	}
}

// ToSlogLevel converts Level to slog.Level.
func (l Level) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromFlags determines the log level from debug and trace flags,
// falling back to the configured level.
func LevelFromFlags(debug, trace bool, configured Level) Level {
	switch {
	case trace:
		return LevelDebug
	case debug:
		return LevelInfo
	case configured != "":
		return configured
	default:
		return LevelWarn
	}
}
