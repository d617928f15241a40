// Package runner turns one hook definition and one encoded context into one
// invocation record, going through the concurrency guard and the process
// runner.
package runner

//go:generate mockgen -source=runner.go -destination=runner_mock.go -package=runner

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/smykla-skalski/hookgate/internal/audit"
	"github.com/smykla-skalski/hookgate/internal/exec"
	"github.com/smykla-skalski/hookgate/internal/guard"
	"github.com/smykla-skalski/hookgate/internal/registry"
	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

const instrumentationName = "github.com/smykla-skalski/hookgate/internal/runner"

// Invocation is one hook run request.
type Invocation struct {
	// Hook is the definition to run.
	Hook *registry.Definition

	// Event is the dispatched event.
	Event hook.Event

	// SessionKey identifies the dispatch's session in the record.
	SessionKey string

	// Input is the encoded hook context written to stdin.
	Input []byte
}

// HookRunner runs hook programs.
type HookRunner interface {
	// Run executes inv and returns its record. It never returns nil and
	// emits the record to the configured sink exactly once.
	Run(ctx context.Context, inv *Invocation) *hook.InvocationRecord
}

// ProcessHookRunner runs hooks as child processes behind a Guard.
type ProcessHookRunner struct {
	guard       *guard.Guard
	proc        exec.ProcessRunner
	sink        audit.Sink
	logger      logger.Logger
	tracer      trace.Tracer
	outputLimit int
	newID       func() string
	now         func() time.Time
}

// Option configures a ProcessHookRunner.
type Option func(*ProcessHookRunner)

// WithSink sets where records are emitted.
func WithSink(sink audit.Sink) Option {
	return func(r *ProcessHookRunner) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(r *ProcessHookRunner) {
		if log != nil {
			r.logger = log
		}
	}
}

// WithOutputLimit sets the per-stream capture ceiling.
func WithOutputLimit(limit int) Option {
	return func(r *ProcessHookRunner) {
		r.outputLimit = limit
	}
}

// WithIDFunc overrides record ID generation.
func WithIDFunc(fn func() string) Option {
	return func(r *ProcessHookRunner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewProcessHookRunner creates a ProcessHookRunner.
func NewProcessHookRunner(g *guard.Guard, proc exec.ProcessRunner, opts ...Option) *ProcessHookRunner {
	r := &ProcessHookRunner{
		guard:       g,
		proc:        proc,
		sink:        audit.Discard,
		logger:      logger.NewNoOpLogger(),
		tracer:      otel.Tracer(instrumentationName),
		outputLimit: exec.DefaultOutputLimit,
		newID:       uuid.NewString,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run acquires a guard slot, runs the process and emits the record.
// Guard saturation is recorded as a spawn failure and caller cancellation
// as a cancelled outcome; neither starts a process.
func (r *ProcessHookRunner) Run(ctx context.Context, inv *Invocation) *hook.InvocationRecord {
	ctx, span := r.tracer.Start(ctx, "hookgate.hook",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("hookgate.hook", inv.Hook.Name()),
			attribute.String("hookgate.event", inv.Event.String()),
		),
	)
	defer span.End()

	rec := &hook.InvocationRecord{
		ID:         r.newID(),
		HookName:   inv.Hook.Name(),
		Event:      inv.Event,
		SessionKey: inv.SessionKey,
		StartedAt:  r.now(),
	}

	defer func() {
		span.SetAttributes(attribute.String("hookgate.outcome", rec.Outcome.String()))

		if rec.ExitCode != nil {
			span.SetAttributes(attribute.Int("hookgate.exit_code", *rec.ExitCode))
		}

		if rec.Error != "" {
			span.SetStatus(codes.Error, rec.Error)
		}

		r.sink.Record(rec)
	}()

	release, err := r.guard.Acquire(ctx)
	if err != nil {
		rec.Outcome = hook.OutcomeSpawnFailed
		if errors.Is(err, hook.ErrCancelled) {
			rec.Outcome = hook.OutcomeCancelled
		}

		rec.Error = err.Error()
		rec.DurationMs = time.Since(rec.StartedAt).Milliseconds()

		return rec
	}

	defer release()

	res := r.proc.Run(ctx, &exec.Spec{
		Command:     inv.Hook.Command(),
		Args:        inv.Hook.Args(),
		Env:         inv.Hook.Env(),
		Dir:         inv.Hook.WorkingDir(),
		Stdin:       inv.Input,
		Timeout:     inv.Hook.Timeout(),
		OutputLimit: r.outputLimit,
	})

	rec.ExitCode = res.ExitCode
	rec.Stdout = res.Stdout
	rec.Stderr = res.Stderr
	rec.StdoutTruncated = res.StdoutTruncated
	rec.StderrTruncated = res.StderrTruncated
	rec.Outcome = res.Outcome
	rec.DurationMs = time.Since(rec.StartedAt).Milliseconds()

	if res.Err != nil {
		rec.Error = res.Err.Error()
	}

	r.logger.Debug("hook finished",
		"hook", rec.HookName,
		"event", rec.Event,
		"outcome", rec.Outcome,
		"exit_code", rec.Code(),
		"duration", rec.Duration(),
	)

	return rec
}
