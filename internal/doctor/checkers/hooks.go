package checkers

import (
	"context"
	"fmt"

	"github.com/smykla-skalski/hookgate/internal/doctor"
	"github.com/smykla-skalski/hookgate/internal/registry"
)

const hookCommandsCheckName = "Hook commands available"

// CommandLookup resolves a hook command to an executable path.
type CommandLookup interface {
	Lookup(command string) (string, error)
}

// HookCommandsChecker verifies every enabled hook's command resolves. A
// missing command is a warning since dispatch fails open on it.
type HookCommandsChecker struct {
	load   func() (*registry.Registry, error)
	lookup CommandLookup
}

// NewHookCommandsChecker creates a checker over the registry load returns.
func NewHookCommandsChecker(load func() (*registry.Registry, error), lookup CommandLookup) *HookCommandsChecker {
	return &HookCommandsChecker{load: load, lookup: lookup}
}

func (*HookCommandsChecker) Name() string              { return hookCommandsCheckName }
func (*HookCommandsChecker) Category() doctor.Category { return doctor.CategoryHooks }

// Check implements doctor.HealthChecker.
func (c *HookCommandsChecker) Check(context.Context) doctor.CheckResult {
	reg, err := c.load()
	if err != nil {
		return doctor.Skip(hookCommandsCheckName, "Configuration did not load")
	}

	var (
		enabled int
		missing []string
	)

	for _, d := range reg.All() {
		if !d.Enabled() {
			continue
		}

		enabled++

		if _, err := c.lookup.Lookup(d.Command()); err != nil {
			missing = append(missing, fmt.Sprintf("%s: %v", d.Name(), err))
		}
	}

	if enabled == 0 {
		return doctor.Skip(hookCommandsCheckName, "No enabled hooks")
	}

	if len(missing) > 0 {
		return doctor.FailWarning(
			hookCommandsCheckName,
			fmt.Sprintf("%d of %d hook command(s) missing, they will be skipped", len(missing), enabled),
		).WithDetails(missing...)
	}

	return doctor.Pass(hookCommandsCheckName, fmt.Sprintf("%d hook(s) resolved", enabled))
}
