package hook

import (
	"bytes"
	"encoding/json"
	"maps"
	"time"

	"github.com/cockroachdb/errors"
)

// Wire field names of the message written to a hook's stdin.
const (
	FieldEvent      = "event"
	FieldSessionKey = "session_key"
	FieldTimestamp  = "timestamp"
	FieldToolName   = "tool_name"
	FieldArguments  = "arguments"
	FieldResult     = "result"
	FieldSuccess    = "success"
	FieldContent    = "content"
	FieldModel      = "model"
)

// Payload holds the event-specific fields of a hook context, such as
// session_key, tool_name, arguments or result. The event name and timestamp
// are added when the context is built.
type Payload map[string]any

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}

	return maps.Clone(p)
}

// SessionKey returns the session_key field.
func (p Payload) SessionKey() string {
	return p.stringField(FieldSessionKey)
}

// ToolName returns the tool_name field.
func (p Payload) ToolName() string {
	return p.stringField(FieldToolName)
}

// Arguments returns the arguments field as an object, or nil.
func (p Payload) Arguments() map[string]any {
	args, _ := p[FieldArguments].(map[string]any)

	return args
}

// Result returns the result field.
func (p Payload) Result() any {
	return p[FieldResult]
}

func (p Payload) stringField(key string) string {
	s, _ := p[key].(string)

	return s
}

// Context is the message delivered to a hook program.
type Context struct {
	// Event is the lifecycle event being dispatched.
	Event Event

	// Timestamp is the moment the context was built.
	Timestamp time.Time

	// Payload carries the event-specific fields.
	Payload Payload
}

// NewContext builds a hook context for the event and payload.
func NewContext(event Event, payload Payload, now time.Time) *Context {
	return &Context{
		Event:     event,
		Timestamp: now,
		Payload:   payload,
	}
}

// MarshalJSON flattens the payload next to the event and timestamp fields.
// Keys are emitted in sorted order, so equal contexts encode to equal bytes.
// Payload fields named event or timestamp are overridden.
func (c *Context) MarshalJSON() ([]byte, error) {
	msg := make(map[string]any, len(c.Payload)+3)
	maps.Copy(msg, c.Payload)

	if _, ok := msg[FieldSessionKey]; !ok {
		msg[FieldSessionKey] = ""
	}

	msg[FieldEvent] = string(c.Event)
	msg[FieldTimestamp] = c.Timestamp.UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling hook context")
	}

	return data, nil
}

// Encode returns the bytes written to the hook's stdin.
func (c *Context) Encode() ([]byte, error) {
	return c.MarshalJSON()
}

// DecodeContext parses a hook context message. Numbers are kept as
// json.Number so payloads round-trip without precision loss.
func DecodeContext(data []byte) (*Context, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var msg map[string]any
	if err := dec.Decode(&msg); err != nil {
		return nil, errors.Wrap(err, "decoding hook context")
	}

	event, _ := msg[FieldEvent].(string)
	if event == "" {
		return nil, errors.New("hook context has no event")
	}

	var ts time.Time

	if raw, ok := msg[FieldTimestamp].(string); ok {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid timestamp %q", raw)
		}

		ts = parsed
	}

	delete(msg, FieldEvent)
	delete(msg, FieldTimestamp)

	return &Context{
		Event:     Event(event),
		Timestamp: ts,
		Payload:   Payload(msg),
	}, nil
}
