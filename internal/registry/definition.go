package registry

import (
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"mvdan.cc/sh/v3/shell"

	"github.com/smykla-skalski/hookgate/internal/xdg"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/hook"
)

// dangerousChars contains shell metacharacters rejected in command paths.
// exec never hands the path to a shell, so their presence means the
// definition was written for one.
var dangerousChars = []byte{';', '|', '&', '$', '`', '"', '\'', '<', '>', '(', ')'}

// Definition is one configured hook program. It is immutable: accessors
// return copies.
type Definition struct {
	name       string
	command    string
	args       []string
	events     []hook.Event
	tools      []string
	timeout    time.Duration
	workingDir string
	env        map[string]string
	enabled    bool
}

// NewDefinition builds a Definition from its config, filling the timeout
// from defaults. The command is not looked up; a missing executable is a
// spawn failure at run time.
func NewDefinition(cfg *config.HookConfig, defaults Defaults) (*Definition, error) {
	if cfg == nil {
		return nil, errors.Wrap(ErrMissingName, "definition is nil")
	}

	if strings.TrimSpace(cfg.Name) == "" {
		return nil, ErrMissingName
	}

	var errs []error

	command, args, err := resolveCommand(cfg)
	if err != nil {
		errs = append(errs, err)
	}

	events, err := parseEvents(cfg.Events)
	if err != nil {
		errs = append(errs, err)
	}

	for _, pattern := range cfg.Tools {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, errors.Wrapf(ErrInvalidToolPattern, "%q", pattern))
		}
	}

	timeout := cfg.Timeout.ToDuration()

	switch {
	case timeout < 0:
		errs = append(errs, errors.Wrapf(ErrNegativeTimeout, "%s", timeout))
	case timeout == 0:
		timeout = defaults.timeout()
	}

	workingDir, err := xdg.ExpandPath(cfg.WorkingDir)
	if err != nil {
		errs = append(errs, errors.Wrap(err, "working_dir"))
	}

	if len(errs) > 0 {
		return nil, errors.Wrapf(combineErrors(errs), "hook %q", cfg.Name)
	}

	return &Definition{
		name:       cfg.Name,
		command:    command,
		args:       args,
		events:     events,
		tools:      slices.Clone(cfg.Tools),
		timeout:    timeout,
		workingDir: workingDir,
		env:        maps.Clone(cfg.Env),
		enabled:    cfg.IsEnabled(),
	}, nil
}

// resolveCommand returns the executable and its arguments. A "run" line is
// split shell-style, with $VARS taken from the hook env first.
func resolveCommand(cfg *config.HookConfig) (string, []string, error) {
	command := strings.TrimSpace(cfg.Command)
	args := slices.Clone(cfg.Args)

	if command == "" {
		if strings.TrimSpace(cfg.Run) == "" {
			return "", nil, ErrMissingCommand
		}

		fields, err := shell.Fields(cfg.Run, func(name string) string {
			if v, ok := cfg.Env[name]; ok {
				return v
			}

			return os.Getenv(name)
		})
		if err != nil {
			return "", nil, errors.Wrapf(ErrInvalidRun, "%q: %v", cfg.Run, err)
		}

		if len(fields) == 0 {
			return "", nil, errors.Wrapf(ErrInvalidRun, "%q expands to nothing", cfg.Run)
		}

		command = fields[0]
		args = append(fields[1:], args...)
	}

	for _, char := range dangerousChars {
		if strings.ContainsRune(command, rune(char)) {
			return "", nil, errors.Wrapf(ErrDangerousChars, "command contains forbidden character: %c", char)
		}
	}

	command, err := xdg.ExpandPath(command)
	if err != nil {
		return "", nil, errors.Wrap(err, "command")
	}

	return command, args, nil
}

// parseEvents converts and de-duplicates event names, keeping their order.
func parseEvents(names []string) ([]hook.Event, error) {
	if len(names) == 0 {
		return nil, ErrNoEvents
	}

	events := make([]hook.Event, 0, len(names))

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.Wrap(ErrNoEvents, "empty event name")
		}

		event := hook.Event(name)
		if !slices.Contains(events, event) {
			events = append(events, event)
		}
	}

	return events, nil
}

// Name returns the unique hook name.
func (d *Definition) Name() string { return d.name }

// Command returns the executable path or name.
func (d *Definition) Command() string { return d.command }

// Args returns a copy of the arguments.
func (d *Definition) Args() []string { return slices.Clone(d.args) }

// Events returns a copy of the bound events.
func (d *Definition) Events() []hook.Event { return slices.Clone(d.events) }

// Tools returns a copy of the tool glob patterns.
func (d *Definition) Tools() []string { return slices.Clone(d.tools) }

// Timeout returns the effective timeout.
func (d *Definition) Timeout() time.Duration { return d.timeout }

// WorkingDir returns the working directory, empty for inherited.
func (d *Definition) WorkingDir() string { return d.workingDir }

// Env returns a copy of the extra environment.
func (d *Definition) Env() map[string]string { return maps.Clone(d.env) }

// Enabled reports whether the hook runs.
func (d *Definition) Enabled() bool { return d.enabled }

// HandlesEvent reports whether the hook is bound to event.
func (d *Definition) HandlesEvent(event hook.Event) bool {
	return slices.Contains(d.events, event)
}

// MatchesTool reports whether the hook applies to toolName. Hooks without
// tool patterns match every tool.
func (d *Definition) MatchesTool(toolName string) bool {
	if len(d.tools) == 0 {
		return true
	}

	for _, pattern := range d.tools {
		if ok, _ := doublestar.Match(pattern, toolName); ok {
			return true
		}
	}

	return false
}

// CommandLine renders the command and arguments for display.
func (d *Definition) CommandLine() string {
	return strings.Join(append([]string{d.command}, d.args...), " ")
}
