package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
)

// ErrNegativeDuration is returned when a negative duration is provided.
var ErrNegativeDuration = errors.New("duration must be non-negative")

// Duration wraps time.Duration for TOML parsing.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrap(err, "invalid duration")
	}

	if dur < 0 {
		return errors.Wrapf(ErrNegativeDuration, "got %s", dur)
	}

	*d = Duration(dur)

	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML serialization.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// String returns the string representation of the duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// ToDuration converts Duration to time.Duration.
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

// JSONSchema returns the JSON Schema for the Duration type.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string",
		Examples:    []any{"500ms", "5s", "1m30s"},
	}
}

// orDefault returns d, or def when d is zero.
func (d Duration) orDefault(def time.Duration) time.Duration {
	if d == 0 {
		return def
	}

	return time.Duration(d)
}
