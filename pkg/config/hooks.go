package config

import (
	"runtime"
	"time"
)

const (
	// DefaultHookTimeout is the per-hook timeout when neither the hook nor
	// the hooks section sets one.
	DefaultHookTimeout = 5 * time.Second

	// DefaultAcquireTimeout bounds the wait for a concurrency slot.
	DefaultAcquireTimeout = 2 * time.Second

	// DefaultOutputLimit is the per-stream capture ceiling in bytes (64 KiB).
	DefaultOutputLimit = 64 * 1024

	// concurrencyPerCPU multiplies runtime.NumCPU for the default guard capacity.
	concurrencyPerCPU = 4
)

// HooksConfig contains engine settings and the ordered hook definitions.
type HooksConfig struct {
	// DefaultTimeout applies to hooks without their own timeout.
	// Default: "5s"
	DefaultTimeout Duration `json:"default_timeout,omitempty" koanf:"default_timeout" toml:"default_timeout,omitempty"`

	// MaxConcurrent caps simultaneously running hook processes system-wide.
	// Default: 4 * runtime.NumCPU()
	MaxConcurrent *int `json:"max_concurrent,omitempty" koanf:"max_concurrent" toml:"max_concurrent,omitempty"`

	// AcquireTimeout bounds the wait for a free slot. A timed-out wait is
	// treated as a spawn failure.
	// Default: "2s"
	AcquireTimeout Duration `json:"acquire_timeout,omitempty" koanf:"acquire_timeout" toml:"acquire_timeout,omitempty"`

	// OutputLimit is the capture ceiling in bytes for stdout and stderr each.
	// Default: 65536
	OutputLimit *int `json:"output_limit,omitempty" koanf:"output_limit" toml:"output_limit,omitempty"`

	// Definitions is the ordered list of hooks. Order within an event is
	// the order of this list.
	Definitions []*HookConfig `json:"definitions,omitempty" koanf:"definitions" toml:"definitions,omitempty"`
}

// GetDefaultTimeout returns the default per-hook timeout.
func (h *HooksConfig) GetDefaultTimeout() time.Duration {
	if h == nil {
		return DefaultHookTimeout
	}

	return h.DefaultTimeout.orDefault(DefaultHookTimeout)
}

// GetMaxConcurrent returns the guard capacity.
func (h *HooksConfig) GetMaxConcurrent() int {
	if h == nil || h.MaxConcurrent == nil || *h.MaxConcurrent <= 0 {
		return concurrencyPerCPU * runtime.NumCPU()
	}

	return *h.MaxConcurrent
}

// GetAcquireTimeout returns the guard wait timeout.
func (h *HooksConfig) GetAcquireTimeout() time.Duration {
	if h == nil {
		return DefaultAcquireTimeout
	}

	return h.AcquireTimeout.orDefault(DefaultAcquireTimeout)
}

// GetOutputLimit returns the per-stream capture ceiling.
func (h *HooksConfig) GetOutputLimit() int {
	if h == nil || h.OutputLimit == nil || *h.OutputLimit <= 0 {
		return DefaultOutputLimit
	}

	return *h.OutputLimit
}

// HookConfig configures a single hook program.
type HookConfig struct {
	// Name uniquely identifies the hook. Definitions from several config
	// files are merged by name.
	Name string `json:"name" koanf:"name" toml:"name"`

	// Command is the executable path. Resolved through PATH when it has no
	// separator. Existence is checked at spawn time, not at load time.
	Command string `json:"command,omitempty" koanf:"command" toml:"command,omitempty"`

	// Run is a shell-style command line used when Command is empty.
	// Example: "python3 ~/hooks/audit.py --json"
	Run string `json:"run,omitempty" koanf:"run" toml:"run,omitempty"`

	// Args are passed to the executable after Command.
	Args []string `json:"args,omitempty" koanf:"args" toml:"args,omitempty"`

	// Events the hook is bound to.
	Events []string `json:"events" koanf:"events" toml:"events"`

	// Tools restricts tool-bearing events to matching tool names (glob).
	// Empty means all tools.
	Tools []string `json:"tools,omitempty" koanf:"tools" toml:"tools,omitempty"`

	// Timeout overrides the default per-hook timeout.
	Timeout Duration `json:"timeout,omitempty" koanf:"timeout" toml:"timeout,omitempty"`

	// WorkingDir is the process working directory. Empty inherits ours.
	WorkingDir string `json:"working_dir,omitempty" koanf:"working_dir" toml:"working_dir,omitempty"`

	// Env holds extra environment variables. They override inherited ones.
	Env map[string]string `json:"env,omitempty" koanf:"env" toml:"env,omitempty"`

	// Enabled controls whether the hook runs. Disabled hooks stay listed.
	// Default: true
	Enabled *bool `json:"enabled,omitempty" koanf:"enabled" toml:"enabled,omitempty"`
}

// IsEnabled returns whether the hook is enabled.
func (h *HookConfig) IsEnabled() bool {
	if h == nil || h.Enabled == nil {
		return true
	}

	return *h.Enabled
}
