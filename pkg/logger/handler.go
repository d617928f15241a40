package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// timestampLayout is the local-time layout of every log line.
const timestampLayout = "2006-01-02T15:04:05-07:00"

// CustomHandler writes one "time LEVEL message key=value..." line per
// record. Attributes added through WithAttrs are rendered once and reused.
type CustomHandler struct {
	out    *output
	level  slog.Leveler
	prefix string // group path applied to record attributes, "a.b."
	attrs  []byte // pre-rendered WithAttrs output, leading space included
}

// output is shared by a handler and everything derived from it.
type output struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFileHandler opens path for appending and returns a handler writing to it.
func NewFileHandler(path string, level Level) (*CustomHandler, error) {
	//nolint:gosec // path comes from the loaded configuration
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions)
	if err != nil {
		return nil, err
	}

	return NewWriterHandler(file, level), nil
}

// NewWriterHandler returns a handler writing to w.
func NewWriterHandler(w io.Writer, level Level) *CustomHandler {
	return &CustomHandler{
		out:   &output{w: w},
		level: level.ToSlogLevel(),
	}
}

// Enabled implements slog.Handler.
func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	line := make([]byte, 0, 128+len(h.attrs))

	line = r.Time.Local().AppendFormat(line, timestampLayout)
	line = append(line, ' ')
	line = append(line, r.Level.String()...)
	line = append(line, ' ')
	line = append(line, r.Message...)
	line = append(line, h.attrs...)

	r.Attrs(func(a slog.Attr) bool {
		line = appendAttr(line, h.prefix, a)

		return true
	})

	line = append(line, '\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()

	_, err := h.out.w.Write(line)

	return err
}

// WithAttrs implements slog.Handler.
func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	child := *h
	child.attrs = append([]byte(nil), h.attrs...)

	for _, a := range attrs {
		child.attrs = appendAttr(child.attrs, h.prefix, a)
	}

	return &child
}

// WithGroup implements slog.Handler. Keys logged afterwards are written as
// "group.key".
func (h *CustomHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	child := *h
	child.prefix = h.prefix + name + "."

	return &child
}

// Close closes the underlying writer when it is an io.Closer.
func (h *CustomHandler) Close() error {
	h.out.mu.Lock()
	defer h.out.mu.Unlock()

	if c, ok := h.out.w.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

// appendAttr renders " prefix+key=value". Group values are flattened into
// dotted keys and empty attributes are dropped.
func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}

	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}

		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, prefix, ga)
		}

		return buf
	}

	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')

	val := formatValue(a.Value)
	if strings.ContainsAny(val, " \t\r\n\"=") {
		return strconv.AppendQuote(buf, val)
	}

	return append(buf, val...)
}

// formatValue renders durations in milliseconds, times in RFC 3339 and
// errors by message.
func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindDuration:
		return strconv.FormatInt(v.Duration().Milliseconds(), 10) + "ms"
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}

	return v.String()
}
