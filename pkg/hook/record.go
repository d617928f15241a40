package hook

import "time"

// Outcome describes how a hook process invocation ended.
type Outcome string

const (
	// OutcomeOK means the process ran and exited on its own.
	OutcomeOK Outcome = "ok"

	// OutcomeTimedOut means the process was killed after its timeout.
	OutcomeTimedOut Outcome = "timed_out"

	// OutcomeSpawnFailed means the process could not be started, including
	// when the concurrency guard refused admission.
	OutcomeSpawnFailed Outcome = "spawn_failed"

	// OutcomeCancelled means the caller aborted the dispatch and the process
	// was killed or never started.
	OutcomeCancelled Outcome = "cancelled"
)

// String returns the outcome name.
func (o Outcome) String() string {
	return string(o)
}

// InvocationRecord is the audit record of one hook invocation. It is produced
// for every invocation regardless of the resulting verdict.
type InvocationRecord struct {
	// ID uniquely identifies the invocation.
	ID string `json:"id"`

	// HookName is the name of the hook definition.
	HookName string `json:"hook_name"`

	// Event is the dispatched event.
	Event Event `json:"event"`

	// SessionKey is the session the dispatch belonged to.
	SessionKey string `json:"session_key,omitempty"`

	// ExitCode is set only when Outcome is OutcomeOK.
	ExitCode *int `json:"exit_code,omitempty"`

	// Stdout is the captured stdout, truncated at the output limit.
	Stdout string `json:"stdout,omitempty"`

	// Stderr is the captured stderr, truncated at the output limit.
	Stderr string `json:"stderr,omitempty"`

	// StdoutTruncated is true when stdout exceeded the output limit.
	StdoutTruncated bool `json:"stdout_truncated,omitempty"`

	// StderrTruncated is true when stderr exceeded the output limit.
	StderrTruncated bool `json:"stderr_truncated,omitempty"`

	// DurationMs is the wall time of the invocation in milliseconds.
	DurationMs int64 `json:"duration_ms"`

	// Outcome tells how the invocation ended.
	Outcome Outcome `json:"outcome"`

	// StartedAt is when the invocation started.
	StartedAt time.Time `json:"started_at"`

	// Error describes spawn failures and guard refusals.
	Error string `json:"error,omitempty"`
}

// Duration returns DurationMs as a time.Duration.
func (r *InvocationRecord) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// Code returns the exit code, or -1 when it is unset.
func (r *InvocationRecord) Code() int {
	if r.ExitCode == nil {
		return -1
	}

	return *r.ExitCode
}
