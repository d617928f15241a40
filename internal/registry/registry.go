// Package registry holds the immutable, versioned snapshot of configured
// hooks and the atomic reference dispatches read it through.
package registry

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/hook"
)

var (
	// ErrMissingName is returned for a definition without a name.
	ErrMissingName = errors.New("hook name is required")

	// ErrDuplicateName is returned when two definitions share a name.
	ErrDuplicateName = errors.New("duplicate hook name")

	// ErrMissingCommand is returned when neither command nor run is set.
	ErrMissingCommand = errors.New("hook command or run is required")

	// ErrInvalidRun is returned when a run line cannot be split.
	ErrInvalidRun = errors.New("invalid run command line")

	// ErrDangerousChars is returned when the command path has shell metacharacters.
	ErrDangerousChars = errors.New("dangerous characters in command")

	// ErrNoEvents is returned when a definition is bound to no event.
	ErrNoEvents = errors.New("hook must be bound to at least one event")

	// ErrInvalidToolPattern is returned for malformed tool globs.
	ErrInvalidToolPattern = errors.New("invalid tool pattern")

	// ErrNegativeTimeout is returned for a negative hook timeout.
	ErrNegativeTimeout = errors.New("hook timeout must be non-negative")
)

// Defaults holds values applied to definitions that leave them unset.
type Defaults struct {
	// Timeout is the per-hook timeout. Zero means config.DefaultHookTimeout.
	Timeout time.Duration
}

// DefaultsFrom extracts Defaults from the hooks section.
func DefaultsFrom(cfg *config.HooksConfig) Defaults {
	return Defaults{Timeout: cfg.GetDefaultTimeout()}
}

func (d Defaults) timeout() time.Duration {
	if d.Timeout <= 0 {
		return config.DefaultHookTimeout
	}

	return d.Timeout
}

// Registry is an immutable snapshot of hook definitions. A reload produces
// a new Registry; existing ones are never modified.
type Registry struct {
	version  uint64
	defaults Defaults
	defs     []*Definition
	byName   map[string]*Definition
	byEvent  map[hook.Event][]*Definition
}

// Empty returns a registry with no hooks at version 0.
func Empty() *Registry {
	r, _ := New(0, Defaults{}, nil)

	return r
}

// New validates cfgs and builds a registry. Declaration order is preserved.
func New(version uint64, defaults Defaults, cfgs []*config.HookConfig) (*Registry, error) {
	defs, err := build(defaults, cfgs)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		version:  version,
		defaults: defaults,
		defs:     defs,
		byName:   make(map[string]*Definition, len(defs)),
		byEvent:  make(map[hook.Event][]*Definition),
	}

	for _, d := range defs {
		r.byName[d.name] = d

		if !d.enabled {
			continue
		}

		for _, event := range d.events {
			r.byEvent[event] = append(r.byEvent[event], d)
		}
	}

	return r, nil
}

// Validate checks cfgs the way New does and reports every problem.
func Validate(cfgs []*config.HookConfig) error {
	_, err := build(Defaults{}, cfgs)

	return err
}

func build(defaults Defaults, cfgs []*config.HookConfig) ([]*Definition, error) {
	var (
		defs = make([]*Definition, 0, len(cfgs))
		seen = make(map[string]bool, len(cfgs))
		errs []error
	)

	for i, cfg := range cfgs {
		def, err := NewDefinition(cfg, defaults)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "hooks.definitions[%d]", i))

			continue
		}

		if seen[def.name] {
			errs = append(errs, errors.Wrapf(ErrDuplicateName, "hooks.definitions[%d]: %q", i, def.name))

			continue
		}

		seen[def.name] = true
		defs = append(defs, def)
	}

	if len(errs) > 0 {
		return nil, combineErrors(errs)
	}

	return defs, nil
}

// Reload builds the next version from cfgs, keeping the current defaults.
// It is pure: r is left untouched.
func (r *Registry) Reload(cfgs []*config.HookConfig) (*Registry, error) {
	return r.ReloadWith(r.defaults, cfgs)
}

// ReloadWith builds the next version from cfgs and new defaults.
func (r *Registry) ReloadWith(defaults Defaults, cfgs []*config.HookConfig) (*Registry, error) {
	return New(r.version+1, defaults, cfgs)
}

// ForEvent returns the enabled hooks bound to event in declaration order.
// The returned slice is a copy.
func (r *Registry) ForEvent(event hook.Event) []*Definition {
	defs := r.byEvent[event]
	if len(defs) == 0 {
		return nil
	}

	return append([]*Definition(nil), defs...)
}

// All returns every definition, disabled ones included.
func (r *Registry) All() []*Definition {
	return append([]*Definition(nil), r.defs...)
}

// Get returns the definition with the given name.
func (r *Registry) Get(name string) (*Definition, bool) {
	d, ok := r.byName[name]

	return d, ok
}

// Version returns the snapshot version. It increases by one per reload.
func (r *Registry) Version() uint64 { return r.version }

// Len returns the number of definitions, disabled ones included.
func (r *Registry) Len() int { return len(r.defs) }

// Events returns the events that have at least one enabled hook.
func (r *Registry) Events() []hook.Event {
	events := make([]hook.Event, 0, len(r.byEvent))
	for event := range r.byEvent {
		events = append(events, event)
	}

	return events
}

// String implements fmt.Stringer.
func (r *Registry) String() string {
	return fmt.Sprintf("registry v%d (%d hooks)", r.version, len(r.defs))
}

// combineErrors combines multiple errors into one.
func combineErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}

	return errors.Join(errs...)
}
