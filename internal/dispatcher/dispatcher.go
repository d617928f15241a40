// Package dispatcher runs every hook bound to an event and folds their
// verdicts into one decision.
package dispatcher

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smykla-skalski/hookgate/internal/registry"
	"github.com/smykla-skalski/hookgate/internal/runner"
	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

const instrumentationName = "github.com/smykla-skalski/hookgate/internal/dispatcher"

// VerdictParser derives a hook's verdict from its invocation record.
type VerdictParser interface {
	Parse(event hook.Event, rec *hook.InvocationRecord) hook.Verdict
}

// Dispatcher runs the hooks of one event in declaration order.
//
// The registry snapshot is read once per dispatch, so a reload never
// changes the hook list of a dispatch already in flight. A Block stops the
// dispatch; a Modify replaces the payload seen by the following hooks. Any
// other failure fails open.
type Dispatcher struct {
	store   *registry.Store
	runner  runner.HookRunner
	parser  VerdictParser
	catalog hook.Catalog
	logger  logger.Logger
	tracer  trace.Tracer
	metrics *metrics
	now     func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.logger = log
		}
	}
}

// WithCatalog sets the event catalog used to apply Modify data. It must be
// the catalog the parser checks verdicts against.
func WithCatalog(catalog hook.Catalog) Option {
	return func(d *Dispatcher) {
		d.catalog = catalog
	}
}

// WithClock overrides the clock used for context timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a Dispatcher reading hooks from store.
func New(store *registry.Store, r runner.HookRunner, p VerdictParser, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		runner:  r,
		parser:  p,
		catalog: hook.DefaultCatalog(),
		logger:  logger.NewNoOpLogger(),
		tracer:  otel.Tracer(instrumentationName),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.metrics = newMetrics(otel.Meter(instrumentationName), d.logger)

	return d
}

// Dispatch runs the hooks bound to event against payload and returns the
// aggregate decision. It never returns an error: hook failures are logged
// and fail open, and only a Block or a cancelled ctx produce a Deny. The
// caller's payload is not modified.
func (d *Dispatcher) Dispatch(ctx context.Context, event hook.Event, payload hook.Payload) hook.Decision {
	spec := d.catalog.Spec(event)

	hooks := d.store.Load().ForEvent(event)
	if spec.ToolBearing {
		hooks = filterByTool(hooks, payload.ToolName())
	}

	if len(hooks) == 0 {
		return hook.Allow(payload)
	}

	start := time.Now()

	ctx, span := d.tracer.Start(ctx, "hookgate.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("hookgate.event", event.String()),
			attribute.Int("hookgate.hooks", len(hooks)),
		),
	)
	defer span.End()

	decision := d.run(ctx, spec, hooks, payload)

	span.SetAttributes(attribute.Bool("hookgate.allowed", decision.Allowed))

	if !decision.Allowed {
		span.SetAttributes(
			attribute.String("hookgate.denied_by", decision.Hook),
			attribute.String("hookgate.reason", decision.Reason),
		)
	}

	d.metrics.recordDispatch(ctx, event, decision, time.Since(start))

	return decision
}

func (d *Dispatcher) run(
	ctx context.Context,
	spec hook.EventSpec,
	hooks []*registry.Definition,
	payload hook.Payload,
) hook.Decision {
	current := payload
	sessionKey := payload.SessionKey()

	for _, def := range hooks {
		if ctx.Err() != nil {
			return d.cancelled(spec.Name, def.Name(), ctx.Err())
		}

		input, err := hook.NewContext(spec.Name, current, d.now()).Encode()
		if err != nil {
			// Payloads come from the gateway, not from hooks. An unencodable
			// one cannot reach any hook, so the remaining hooks are skipped.
			d.logger.Error("cannot encode hook context",
				"event", spec.Name,
				"hook", def.Name(),
				"error", err,
			)

			return hook.Allow(current)
		}

		rec := d.runner.Run(ctx, &runner.Invocation{
			Hook:       def,
			Event:      spec.Name,
			SessionKey: sessionKey,
			Input:      input,
		})

		if rec.Outcome == hook.OutcomeCancelled || ctx.Err() != nil {
			return d.cancelled(spec.Name, def.Name(), ctx.Err())
		}

		v := d.parser.Parse(spec.Name, rec)

		switch v.Kind {
		case hook.VerdictBlock:
			d.logger.Info("dispatch denied",
				"event", spec.Name,
				"hook", def.Name(),
				"reason", v.Reason,
			)

			return hook.Deny(v.Reason, def.Name())
		case hook.VerdictModify:
			next, err := applyModify(spec, current, v.Data)
			if err != nil {
				d.logger.Warn("hook verdict downgraded to continue",
					"event", spec.Name,
					"hook", def.Name(),
					"id", rec.ID,
					"error", err,
				)

				continue
			}

			d.logger.Debug("payload modified", "event", spec.Name, "hook", def.Name())

			current = next
		case hook.VerdictContinue:
		}
	}

	return hook.Allow(current)
}

func (d *Dispatcher) cancelled(event hook.Event, hookName string, cause error) hook.Decision {
	d.logger.Info("dispatch cancelled",
		"event", event,
		"hook", hookName,
		"error", cause,
	)

	return hook.Deny(hook.CancelledReason, hookName)
}

// applyModify returns a copy of current with the event's modifiable field
// replaced by data, or data itself for whole-payload events.
func applyModify(spec hook.EventSpec, current hook.Payload, data any) (hook.Payload, error) {
	if spec.ModifyField != "" {
		next := current.Clone()
		next[spec.ModifyField] = data

		return next, nil
	}

	if spec.ModifyWhole {
		obj, ok := data.(map[string]any)
		if !ok {
			return nil, errors.Wrapf(hook.ErrMalformedModifyOutput,
				"%s replaces the whole payload, data must be an object, got %T", spec.Name, data)
		}

		return hook.Payload(obj), nil
	}

	return nil, errors.Wrapf(hook.ErrIllegalVerdict, "modify is not allowed for %s", spec.Name)
}

func filterByTool(hooks []*registry.Definition, toolName string) []*registry.Definition {
	out := hooks[:0]

	for _, def := range hooks {
		if def.MatchesTool(toolName) {
			out = append(out, def)
		}
	}

	return out
}
