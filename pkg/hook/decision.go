package hook

import (
	"fmt"
)

// CancelledReason is the Deny reason used when the caller aborted a dispatch.
const CancelledReason = "cancelled"

// Decision is the dispatcher's aggregate answer for one dispatch.
type Decision struct {
	// Allowed is true for Allow decisions.
	Allowed bool `json:"allowed"`

	// Payload is the final payload of an Allow decision, after every Modify.
	Payload Payload `json:"payload,omitempty"`

	// Reason is the Deny reason.
	Reason string `json:"reason,omitempty"`

	// Hook is the name of the hook that denied.
	Hook string `json:"hook,omitempty"`
}

// Allow returns an Allow decision with the final payload.
func Allow(payload Payload) Decision {
	return Decision{Allowed: true, Payload: payload}
}

// Deny returns a Deny decision naming the blocking hook.
func Deny(reason, hookName string) Decision {
	return Decision{Reason: reason, Hook: hookName}
}

// Cancelled reports whether the decision is a Deny caused by cancellation.
func (d Decision) Cancelled() bool {
	return !d.Allowed && d.Reason == CancelledReason
}

// Err returns nil for Allow and a *DeniedError for Deny.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}

	return &DeniedError{Hook: d.Hook, Reason: d.Reason}
}

// String returns a short human-readable form.
func (d Decision) String() string {
	if d.Allowed {
		return "allow"
	}

	return fmt.Sprintf("deny by %s: %s", d.Hook, d.Reason)
}

// DeniedError carries the blocking hook and its reason to call sites that
// report failures as errors.
type DeniedError struct {
	Hook   string
	Reason string
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	if e.Hook == "" {
		return "blocked by hook: " + e.Reason
	}

	return fmt.Sprintf("blocked by hook %s: %s", e.Hook, e.Reason)
}
