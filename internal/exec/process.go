// Package exec runs hook programs as child processes with bounded output
// capture and process-group termination.
package exec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/hookgate/pkg/hook"
)

const (
	// DefaultOutputLimit is the per-stream capture ceiling used when a Spec
	// leaves OutputLimit unset.
	DefaultOutputLimit = 64 << 10

	// DefaultWaitDelay bounds how long Wait keeps reading pipes held open by
	// descendants after the hook itself has exited or been killed.
	DefaultWaitDelay = 500 * time.Millisecond
)

// Spec describes one hook process invocation.
type Spec struct {
	// Command is the executable path or name looked up in PATH.
	Command string

	// Args are passed to the command.
	Args []string

	// Env overrides entries of the parent environment.
	Env map[string]string

	// Dir is the working directory. Empty inherits the parent's.
	Dir string

	// Stdin is written to the process and then closed.
	Stdin []byte

	// Timeout kills the process group when exceeded. Zero disables it.
	Timeout time.Duration

	// OutputLimit caps captured bytes per stream.
	OutputLimit int
}

// Result is what a process invocation produced.
type Result struct {
	// ExitCode is set only when Outcome is hook.OutcomeOK.
	ExitCode *int

	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool

	StartedAt time.Time
	Duration  time.Duration
	Outcome   hook.Outcome

	// Err is set for every outcome other than hook.OutcomeOK and is marked
	// with the matching hook sentinel.
	Err error
}

// ProcessRunner spawns hook processes.
type ProcessRunner interface {
	// Run executes spec and waits for it to finish, time out or be cancelled.
	// It never returns nil.
	Run(ctx context.Context, spec *Spec) *Result
}

type processRunner struct {
	waitDelay time.Duration
}

// Option configures a ProcessRunner.
type Option func(*processRunner)

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) Option {
	return func(r *processRunner) {
		r.waitDelay = d
	}
}

// NewProcessRunner creates a ProcessRunner.
func NewProcessRunner(opts ...Option) ProcessRunner {
	r := &processRunner{waitDelay: DefaultWaitDelay}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes spec. On timeout or cancellation the whole process group is
// killed before Run returns.
func (r *processRunner) Run(ctx context.Context, spec *Spec) *Result {
	result := &Result{StartedAt: time.Now()}

	defer func() {
		result.Duration = time.Since(result.StartedAt)
	}()

	if err := ctx.Err(); err != nil {
		result.Outcome = hook.OutcomeCancelled
		result.Err = errors.Wrapf(hook.ErrCancelled, "before start: %v", context.Cause(ctx))

		return result
	}

	runCtx := ctx

	if spec.Timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	limit := spec.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}

	stdout := newBoundedBuffer(limit)
	stderr := newBoundedBuffer(limit)

	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...)
	cmd.Env = MergeEnv(os.Environ(), spec.Env)
	cmd.Dir = spec.Dir
	cmd.Stdin = bytes.NewReader(spec.Stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.waitDelay

	configureProcessGroup(cmd)

	err := cmd.Start()
	if err != nil {
		if ctx.Err() != nil {
			result.Outcome = hook.OutcomeCancelled
			result.Err = errors.Wrapf(hook.ErrCancelled, "before start: %v", context.Cause(ctx))

			return result
		}

		result.Outcome = hook.OutcomeSpawnFailed
		result.Err = errors.Mark(errors.Wrapf(err, "starting %s", spec.Command), hook.ErrSpawnFailed)

		return result
	}

	waitErr := cmd.Wait()

	result.Stdout, result.StdoutTruncated = stdout.String(), stdout.Truncated()
	result.Stderr, result.StderrTruncated = stderr.String(), stderr.Truncated()

	state := cmd.ProcessState
	killed := runCtx.Err() != nil && (state == nil || !state.Exited())

	switch {
	case killed && ctx.Err() != nil:
		result.Outcome = hook.OutcomeCancelled
		result.Err = errors.Wrapf(hook.ErrCancelled, "%v", context.Cause(ctx))
	case killed:
		result.Outcome = hook.OutcomeTimedOut
		result.Err = errors.Wrapf(hook.ErrTimeout, "after %s", spec.Timeout)
	case state == nil:
		result.Outcome = hook.OutcomeSpawnFailed
		result.Err = errors.Mark(errors.Wrapf(waitErr, "waiting for %s", spec.Command), hook.ErrSpawnFailed)
	default:
		code := state.ExitCode()
		result.Outcome = hook.OutcomeOK
		result.ExitCode = &code
	}

	return result
}

// MergeEnv overlays overrides on base, a list of KEY=VALUE entries. Entries
// of base whose key is overridden are dropped; overrides are appended in
// key order.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	env := make([]string, 0, len(base)+len(overrides))

	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; !ok {
			env = append(env, kv)
		}
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}

	return env
}
