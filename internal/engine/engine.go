// Package engine wires the registry, process runner, verdict parser,
// dispatcher and audit sinks into one component built from configuration.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	internalconfig "github.com/smykla-skalski/hookgate/internal/config"
	"github.com/smykla-skalski/hookgate/internal/audit"
	"github.com/smykla-skalski/hookgate/internal/dispatcher"
	"github.com/smykla-skalski/hookgate/internal/exec"
	"github.com/smykla-skalski/hookgate/internal/guard"
	"github.com/smykla-skalski/hookgate/internal/registry"
	"github.com/smykla-skalski/hookgate/internal/runner"
	"github.com/smykla-skalski/hookgate/internal/verdict"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

// Watcher delivers configuration reloads until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, debounce time.Duration, onReload internalconfig.ReloadFunc) error
}

// Engine is the hook execution engine. It is safe for concurrent use.
type Engine struct {
	store      *registry.Store
	guard      *guard.Guard
	dispatcher *dispatcher.Dispatcher
	audit      audit.Store
	queue      *audit.Queue
	stream     *audit.Broadcaster
	logger     logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger  logger.Logger
	catalog hook.Catalog
	proc    exec.ProcessRunner
	sinks   []audit.Sink
}

// WithLogger sets the logger shared by every component.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithCatalog extends or replaces the built-in event catalog.
func WithCatalog(catalog hook.Catalog) Option {
	return func(o *options) {
		o.catalog = catalog
	}
}

// WithProcessRunner replaces the process runner.
func WithProcessRunner(proc exec.ProcessRunner) Option {
	return func(o *options) {
		if proc != nil {
			o.proc = proc
		}
	}
}

// WithSink adds a sink that receives every invocation record.
func WithSink(sink audit.Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, sink)
	}
}

// New builds an Engine from cfg. The hook definitions are validated; an
// invalid set is an error.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	o := options{
		logger:  logger.NewNoOpLogger(),
		catalog: hook.DefaultCatalog(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.proc == nil {
		o.proc = exec.NewProcessRunner()
	}

	hooksCfg := cfg.GetHooks()

	store := registry.NewStore(nil)
	if _, err := store.Reload(hooksCfg); err != nil {
		return nil, errors.Wrap(err, "loading hook definitions")
	}

	e := &Engine{
		store:  store,
		guard:  guard.New(hooksCfg.GetMaxConcurrent(), hooksCfg.GetAcquireTimeout()),
		stream: audit.NewBroadcaster(),
		logger: o.logger,
	}

	sinks := []audit.Sink{audit.NewLogSink(o.logger), e.stream}

	if auditCfg := cfg.GetAudit(); auditCfg.IsEnabled() {
		st, err := audit.Open(auditCfg, o.logger)
		if err != nil {
			return nil, errors.Wrap(err, "opening audit store")
		}

		e.audit = st
		e.queue = audit.NewQueue(st, audit.DefaultQueueSize, o.logger)
		sinks = append(sinks, e.queue)
	}

	sinks = append(sinks, o.sinks...)

	r := runner.NewProcessHookRunner(e.guard, o.proc,
		runner.WithSink(audit.Multi(sinks...)),
		runner.WithLogger(o.logger),
		runner.WithOutputLimit(hooksCfg.GetOutputLimit()),
	)

	parser, err := verdict.New(o.catalog, o.logger)
	if err != nil {
		e.closeStores()

		return nil, err
	}

	e.dispatcher = dispatcher.New(e.store, r, parser,
		dispatcher.WithLogger(o.logger),
		dispatcher.WithCatalog(o.catalog),
	)

	o.logger.Debug("engine ready",
		"hooks", e.store.Load().Len(),
		"max_concurrent", e.guard.Capacity(),
		"audit", e.audit != nil,
	)

	return e, nil
}

// Dispatch runs the hooks bound to event and returns the aggregate decision.
func (e *Engine) Dispatch(ctx context.Context, event hook.Event, payload hook.Payload) hook.Decision {
	return e.dispatcher.Dispatch(ctx, event, payload)
}

// Registry returns the current snapshot.
func (e *Engine) Registry() *registry.Registry {
	return e.store.Load()
}

// Hooks returns every configured hook of the current snapshot, disabled
// ones included, in declaration order.
func (e *Engine) Hooks() []*registry.Definition {
	return e.store.Load().All()
}

// Reload replaces the hook definitions with those of cfg. In-flight
// dispatches finish with the snapshot they started with. On error the
// current snapshot stays active. Guard and audit settings are fixed at
// construction.
func (e *Engine) Reload(cfg *config.Config) error {
	prev := e.store.Load()

	next, err := e.store.Reload(cfg.GetHooks())
	if err != nil {
		e.logger.Warn("hook reload rejected, keeping previous definitions",
			"version", prev.Version(),
			"error", err,
		)

		return err
	}

	if capacity := cfg.GetHooks().GetMaxConcurrent(); capacity != e.guard.Capacity() {
		e.logger.Info("max_concurrent changed, restart to apply",
			"current", e.guard.Capacity(),
			"configured", capacity,
		)
	}

	e.logger.Info("hooks reloaded", "version", next.Version(), "hooks", next.Len())

	return nil
}

// Watch reloads the hooks whenever w reports a new configuration, until
// ctx is done. Invalid configurations are logged and ignored.
func (e *Engine) Watch(ctx context.Context, w Watcher) error {
	return w.Watch(ctx, internalconfig.DefaultWatchDebounce, func(cfg *config.Config, err error) {
		if err != nil {
			e.logger.Warn("config reload failed, keeping previous definitions", "error", err)

			return
		}

		_ = e.Reload(cfg)
	})
}

// Subscribe returns a channel receiving every invocation record from now
// on. Records are dropped for subscribers that fall behind. The returned
// func unsubscribes.
func (e *Engine) Subscribe(buffer int) (<-chan *hook.InvocationRecord, func()) {
	return e.stream.Subscribe(buffer)
}

// Audit returns the audit store, or nil when auditing is disabled.
func (e *Engine) Audit() audit.Store {
	return e.audit
}

// InFlight returns the number of hook processes running right now.
func (e *Engine) InFlight() int {
	return e.guard.InFlight()
}

// Close closes subscriber channels, writes out queued audit records and
// closes the audit store. The Engine must not dispatch after Close.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.closeStores()
	})

	return e.closeErr
}

func (e *Engine) closeStores() error {
	e.stream.Close()

	if e.audit == nil {
		return nil
	}

	e.queue.Close()

	return errors.Wrap(e.audit.Close(), "closing audit store")
}
