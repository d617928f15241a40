// Package hook provides the core types shared by the hook engine and its callers:
// lifecycle events, the wire message written to hook programs, verdicts,
// decisions and invocation records.
package hook

import (
	"maps"
	"slices"
)

// Event is a named point in the gateway lifecycle where hooks may run.
// The set is open: events missing from a Catalog are still dispatchable,
// but only VerdictContinue is legal for them.
type Event string

const (
	// EventSessionStart fires when a chat session is created. Gating.
	EventSessionStart Event = "SessionStart"

	// EventSessionEnd fires when a chat session is closed.
	EventSessionEnd Event = "SessionEnd"

	// EventBeforeToolCall fires before a tool executes. Gating.
	EventBeforeToolCall Event = "BeforeToolCall"

	// EventToolResultPersist fires before a tool result is written to the
	// session transcript. Hooks may replace the result.
	EventToolResultPersist Event = "ToolResultPersist"

	// EventBeforeAgentStart fires before the agent loop starts a run. Gating.
	EventBeforeAgentStart Event = "BeforeAgentStart"

	// EventAgentEnd fires when an agent run completes.
	EventAgentEnd Event = "AgentEnd"

	// EventAfterToolCall fires after a tool completes, successfully or not.
	EventAfterToolCall Event = "AfterToolCall"

	// EventMessageSending fires before a user message is sent to the model.
	// Hooks may block it or replace its content.
	EventMessageSending Event = "MessageSending"

	// EventMessageSent fires after the model responded.
	EventMessageSent Event = "MessageSent"
)

// String returns the event name.
func (e Event) String() string {
	return string(e)
}

// EventSpec describes which verdicts are legal for an event and which payload
// field a Modify verdict replaces.
type EventSpec struct {
	// Name is the event name.
	Name Event

	// Gating marks events where Block is legal.
	Gating bool

	// ModifyField is the payload field replaced by Modify data. Empty means
	// Modify is illegal, unless ModifyWhole is set.
	ModifyField string

	// ModifyWhole makes Modify data replace the whole payload.
	ModifyWhole bool

	// ToolBearing marks events whose payload carries a tool_name.
	ToolBearing bool
}

// Allows reports whether the verdict kind is legal for the event.
func (s EventSpec) Allows(kind VerdictKind) bool {
	switch kind {
	case VerdictContinue:
		return true
	case VerdictBlock:
		return s.Gating
	case VerdictModify:
		return s.ModifyField != "" || s.ModifyWhole
	default:
		return false
	}
}

// Catalog is an immutable set of event specifications.
type Catalog struct {
	specs map[Event]EventSpec
}

var builtinEvents = []EventSpec{
	{Name: EventSessionStart, Gating: true},
	{Name: EventSessionEnd},
	{Name: EventBeforeToolCall, Gating: true, ToolBearing: true},
	{Name: EventToolResultPersist, ModifyField: FieldResult, ToolBearing: true},
	{Name: EventBeforeAgentStart, Gating: true},
	{Name: EventAgentEnd},
	{Name: EventAfterToolCall, ToolBearing: true},
	{Name: EventMessageSending, Gating: true, ModifyField: FieldContent},
	{Name: EventMessageSent},
}

// DefaultCatalog returns the catalog of built-in gateway events.
func DefaultCatalog() Catalog {
	specs := make(map[Event]EventSpec, len(builtinEvents))
	for _, s := range builtinEvents {
		specs[s.Name] = s
	}

	return Catalog{specs: specs}
}

// With returns a copy of the catalog extended (or overridden) by specs.
func (c Catalog) With(specs ...EventSpec) Catalog {
	next := make(map[Event]EventSpec, len(c.specs)+len(specs))
	maps.Copy(next, c.specs)

	for _, s := range specs {
		next[s.Name] = s
	}

	return Catalog{specs: next}
}

// Lookup returns the spec for an event and whether the event is known.
func (c Catalog) Lookup(event Event) (EventSpec, bool) {
	s, ok := c.specs[event]
	if !ok {
		return EventSpec{Name: event}, false
	}

	return s, true
}

// Spec returns the spec for an event. Unknown events get a spec that only
// allows Continue.
func (c Catalog) Spec(event Event) EventSpec {
	s, _ := c.Lookup(event)

	return s
}

// Events returns the known event names, sorted.
func (c Catalog) Events() []Event {
	return slices.Sorted(maps.Keys(c.specs))
}
