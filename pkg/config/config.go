// Package config provides configuration schema types for hookgate.
package config

// CurrentConfigVersion is the latest config schema version.
const CurrentConfigVersion = 1

// Config represents the root configuration for hookgate.
type Config struct {
	// Version is the config schema version. Defaults to 1 when omitted.
	Version int `json:"version,omitempty" koanf:"version" toml:"version,omitempty"`

	// Hooks contains the engine settings and the ordered hook definitions.
	Hooks *HooksConfig `json:"hooks,omitempty" koanf:"hooks" toml:"hooks,omitempty"`

	// Audit configures where invocation records are persisted.
	Audit *AuditConfig `json:"audit,omitempty" koanf:"audit" toml:"audit,omitempty"`

	// Log configures the engine's own log output.
	Log *LogConfig `json:"log,omitempty" koanf:"log" toml:"log,omitempty"`
}

// GetHooks returns the hooks config, creating it if it doesn't exist.
func (c *Config) GetHooks() *HooksConfig {
	if c.Hooks == nil {
		c.Hooks = &HooksConfig{}
	}

	return c.Hooks
}

// GetAudit returns the audit config, creating it if it doesn't exist.
func (c *Config) GetAudit() *AuditConfig {
	if c.Audit == nil {
		c.Audit = &AuditConfig{}
	}

	return c.Audit
}

// GetLog returns the log config, creating it if it doesn't exist.
func (c *Config) GetLog() *LogConfig {
	if c.Log == nil {
		c.Log = &LogConfig{}
	}

	return c.Log
}

// GetVersion returns the schema version, defaulting to CurrentConfigVersion.
func (c *Config) GetVersion() int {
	if c == nil || c.Version == 0 {
		return CurrentConfigVersion
	}

	return c.Version
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	// Default: "info"
	Level string `json:"level,omitempty" koanf:"level" toml:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`

	// File is the log file path. Empty means the XDG state directory.
	File string `json:"file,omitempty" koanf:"file" toml:"file,omitempty"`
}

// GetLevel returns the configured level name, defaulting to "info".
func (l *LogConfig) GetLevel() string {
	if l == nil || l.Level == "" {
		return "info"
	}

	return l.Level
}
