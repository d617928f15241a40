package config

import (
	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/hookgate/internal/registry"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedVersion is returned for config versions newer than this build.
	ErrUnsupportedVersion = errors.New("unsupported config version")

	// ErrInvalidOption is returned when an option value is invalid.
	ErrInvalidOption = errors.New("invalid option value")

	// ErrNegativeValue is returned when a count or size is negative.
	ErrNegativeValue = errors.New("value must be non-negative")
)

// Validator validates configuration semantics.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the entire configuration.
// Returns an error describing all validation failures.
func (v *Validator) Validate(cfg *config.Config) error {
	if cfg == nil {
		return errors.WithMessage(ErrInvalidConfig, "config is nil")
	}

	var validationErrors []error

	if cfg.GetVersion() > config.CurrentConfigVersion {
		validationErrors = append(validationErrors, errors.Wrapf(
			ErrUnsupportedVersion,
			"version %d, newest supported is %d",
			cfg.Version,
			config.CurrentConfigVersion,
		))
	}

	validationErrors = append(validationErrors, v.validateHooksConfig(cfg.Hooks)...)
	validationErrors = append(validationErrors, v.validateAuditConfig(cfg.Audit)...)
	validationErrors = append(validationErrors, v.validateLogConfig(cfg.Log)...)

	if len(validationErrors) > 0 {
		return errors.Mark(
			errors.Wrapf(
				combineErrors(validationErrors),
				"validation failed with %d error(s)",
				len(validationErrors),
			),
			ErrInvalidConfig,
		)
	}

	return nil
}

// validateHooksConfig validates engine limits and every hook definition.
func (*Validator) validateHooksConfig(cfg *config.HooksConfig) []error {
	if cfg == nil {
		return nil
	}

	var errs []error

	if cfg.MaxConcurrent != nil && *cfg.MaxConcurrent < 0 {
		errs = append(errs, errors.Wrapf(ErrNegativeValue, "hooks.max_concurrent: %d", *cfg.MaxConcurrent))
	}

	if cfg.OutputLimit != nil && *cfg.OutputLimit < 0 {
		errs = append(errs, errors.Wrapf(ErrNegativeValue, "hooks.output_limit: %d", *cfg.OutputLimit))
	}

	if err := registry.Validate(cfg.Definitions); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// validateAuditConfig validates the audit backend and retention values.
func (*Validator) validateAuditConfig(cfg *config.AuditConfig) []error {
	if cfg == nil {
		return nil
	}

	var errs []error

	switch cfg.GetBackend() {
	case config.AuditBackendJSONL, config.AuditBackendSQLite:
	default:
		errs = append(errs, errors.Wrapf(
			ErrInvalidOption,
			"audit.backend %q, must be %q or %q",
			cfg.Backend,
			config.AuditBackendJSONL,
			config.AuditBackendSQLite,
		))
	}

	for name, value := range map[string]*int{
		"audit.max_size_mb":  cfg.MaxSizeMB,
		"audit.max_backups":  cfg.MaxBackups,
		"audit.max_age_days": cfg.MaxAgeDays,
	} {
		if value != nil && *value < 0 {
			errs = append(errs, errors.Wrapf(ErrNegativeValue, "%s: %d", name, *value))
		}
	}

	return errs
}

// validateLogConfig validates the log level name.
func (*Validator) validateLogConfig(cfg *config.LogConfig) []error {
	if cfg == nil || cfg.Level == "" {
		return nil
	}

	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return []error{errors.Wrapf(ErrInvalidOption, "log.level: %v", err)}
	}

	return nil
}

// combineErrors combines multiple errors into one.
func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	return errors.Join(errs...)
}
