// Package config provides internal configuration loading and processing.
package config

import (
	"github.com/smykla-skalski/hookgate/pkg/config"
)

// DefaultConfig returns a Config with all default values populated and no
// hook definitions.
func DefaultConfig() *config.Config {
	return &config.Config{
		Version: config.CurrentConfigVersion,
		Hooks:   DefaultHooksConfig(),
		Audit:   DefaultAuditConfig(),
		Log:     DefaultLogConfig(),
	}
}

// DefaultHooksConfig returns the default engine settings.
func DefaultHooksConfig() *config.HooksConfig {
	var h *config.HooksConfig

	maxConcurrent := h.GetMaxConcurrent()
	outputLimit := h.GetOutputLimit()

	return &config.HooksConfig{
		DefaultTimeout: config.Duration(config.DefaultHookTimeout),
		AcquireTimeout: config.Duration(config.DefaultAcquireTimeout),
		MaxConcurrent:  &maxConcurrent,
		OutputLimit:    &outputLimit,
		Definitions:    []*config.HookConfig{},
	}
}

// DefaultAuditConfig returns the default audit configuration.
func DefaultAuditConfig() *config.AuditConfig {
	enabled := true
	maxSize := config.DefaultAuditMaxSizeMB
	maxBackups := config.DefaultAuditMaxBackups
	maxAge := config.DefaultAuditMaxAgeDays

	return &config.AuditConfig{
		Enabled:    &enabled,
		Backend:    config.AuditBackendJSONL,
		MaxSizeMB:  &maxSize,
		MaxBackups: &maxBackups,
		MaxAgeDays: &maxAge,
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() *config.LogConfig {
	return &config.LogConfig{Level: "info"}
}

// defaultsToMap converts the defaults to a map for koanf loading.
// Durations are strings so they go through the same decode hooks as TOML.
// MaxConcurrent is left out so an absent value keeps tracking NumCPU.
func defaultsToMap() map[string]any {
	return map[string]any{
		"version": config.CurrentConfigVersion,
		"hooks": map[string]any{
			"default_timeout": config.DefaultHookTimeout.String(),
			"acquire_timeout": config.DefaultAcquireTimeout.String(),
			"output_limit":    config.DefaultOutputLimit,
		},
		"audit": map[string]any{
			"enabled":      true,
			"backend":      config.AuditBackendJSONL,
			"max_size_mb":  config.DefaultAuditMaxSizeMB,
			"max_backups":  config.DefaultAuditMaxBackups,
			"max_age_days": config.DefaultAuditMaxAgeDays,
		},
		"log": map[string]any{
			"level": "info",
		},
	}
}
