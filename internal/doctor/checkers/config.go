// Package checkers provides the health checks and fixers behind
// "hookgate doctor".
package checkers

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	internalconfig "github.com/smykla-skalski/hookgate/internal/config"
	"github.com/smykla-skalski/hookgate/internal/doctor"
	"github.com/smykla-skalski/hookgate/pkg/config"
)

const configCheckName = "Configuration valid"

// ConfigLoader is the part of the koanf loader the config check needs.
type ConfigLoader interface {
	Load(flags map[string]any) (*config.Config, error)
	Sources() []string
	GlobalConfigPath() string
}

// ConfigChecker loads and validates the merged configuration.
type ConfigChecker struct {
	loader ConfigLoader
	flags  map[string]any
}

// NewConfigChecker creates a ConfigChecker loading with flags.
func NewConfigChecker(loader ConfigLoader, flags map[string]any) *ConfigChecker {
	return &ConfigChecker{loader: loader, flags: flags}
}

func (*ConfigChecker) Name() string              { return configCheckName }
func (*ConfigChecker) Category() doctor.Category { return doctor.CategoryConfig }

// Check implements doctor.HealthChecker.
func (c *ConfigChecker) Check(context.Context) doctor.CheckResult {
	cfg, err := c.loader.Load(c.flags)

	switch {
	case errors.Is(err, internalconfig.ErrInvalidPermissions):
		return doctor.FailError(configCheckName, "Insecure file permissions").
			WithDetails(err.Error(), "Config files must not be world-writable")
	case errors.Is(err, internalconfig.ErrInvalidTOML):
		return doctor.FailError(configCheckName, "Invalid TOML syntax").WithDetails(err.Error())
	case err != nil:
		return doctor.FailError(configCheckName, "Configuration rejected").WithDetails(err.Error())
	}

	sources := c.loader.Sources()
	if len(sources) == 0 {
		return doctor.FailWarning(configCheckName, "No config file found, no hooks will run").
			WithDetails(
				"Expected at: "+c.loader.GlobalConfigPath(),
				"Create with: hookgate init --global",
			)
	}

	return doctor.Pass(configCheckName, fmt.Sprintf("%d hook(s) defined", len(cfg.GetHooks().Definitions))).
		WithDetails(sources...)
}
