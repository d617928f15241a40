package hook

import "github.com/cockroachdb/errors"

// Diagnostic categories. Only ErrNonZeroExit ever turns into a Deny; the others
// are logged and downgraded to Continue.
var (
	// ErrSpawnFailed is returned when the hook executable could not be started.
	ErrSpawnFailed = errors.New("hook spawn failed")

	// ErrTimeout is returned when the hook did not exit within its timeout.
	ErrTimeout = errors.New("hook timed out")

	// ErrNonZeroExit is returned when the hook exited with a non-zero code.
	ErrNonZeroExit = errors.New("hook exited with non-zero code")

	// ErrMalformedModifyOutput is returned when stdout is not a valid modify message.
	ErrMalformedModifyOutput = errors.New("malformed hook output")

	// ErrIllegalVerdict is returned when a verdict kind is not legal for the event.
	ErrIllegalVerdict = errors.New("verdict not legal for event")

	// ErrUnknownEvent is returned when an event has no catalog entry.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrCancelled is returned when the caller aborted the dispatch.
	ErrCancelled = errors.New("hook cancelled")

	// ErrGuardSaturated is returned when the concurrency guard refused admission.
	ErrGuardSaturated = errors.New("too many hook processes running")
)
