package config

const (
	// AuditBackendJSONL stores records in a rotated JSON lines file.
	AuditBackendJSONL = "jsonl"

	// AuditBackendSQLite stores records in a SQLite database.
	AuditBackendSQLite = "sqlite"

	// DefaultAuditMaxSizeMB is the JSONL size that triggers rotation.
	DefaultAuditMaxSizeMB = 10

	// DefaultAuditMaxBackups is the number of rotated JSONL files kept.
	DefaultAuditMaxBackups = 3

	// DefaultAuditMaxAgeDays is the record retention in days.
	DefaultAuditMaxAgeDays = 30
)

// AuditConfig configures invocation record persistence.
type AuditConfig struct {
	// Enabled controls whether records are persisted. Records are always
	// logged and streamed to subscribers.
	// Default: true
	Enabled *bool `json:"enabled,omitempty" koanf:"enabled" toml:"enabled,omitempty"`

	// Backend is "jsonl" or "sqlite".
	// Default: "jsonl"
	Backend string `json:"backend,omitempty" koanf:"backend" toml:"backend,omitempty" jsonschema:"enum=jsonl,enum=sqlite"`

	// Path is the audit file. Empty means the XDG state directory.
	Path string `json:"path,omitempty" koanf:"path" toml:"path,omitempty"`

	// MaxSizeMB triggers JSONL rotation.
	// Default: 10
	MaxSizeMB *int `json:"max_size_mb,omitempty" koanf:"max_size_mb" toml:"max_size_mb,omitempty"`

	// MaxBackups is the number of rotated JSONL files kept.
	// Default: 3
	MaxBackups *int `json:"max_backups,omitempty" koanf:"max_backups" toml:"max_backups,omitempty"`

	// MaxAgeDays drops records and rotated files older than this.
	// Default: 30
	MaxAgeDays *int `json:"max_age_days,omitempty" koanf:"max_age_days" toml:"max_age_days,omitempty"`
}

// IsEnabled returns whether audit persistence is enabled.
func (a *AuditConfig) IsEnabled() bool {
	if a == nil || a.Enabled == nil {
		return true
	}

	return *a.Enabled
}

// GetBackend returns the backend name, defaulting to jsonl.
func (a *AuditConfig) GetBackend() string {
	if a == nil || a.Backend == "" {
		return AuditBackendJSONL
	}

	return a.Backend
}

// GetMaxSizeMB returns the rotation size in megabytes.
func (a *AuditConfig) GetMaxSizeMB() int {
	if a == nil || a.MaxSizeMB == nil {
		return DefaultAuditMaxSizeMB
	}

	return *a.MaxSizeMB
}

// GetMaxBackups returns the number of rotated files kept.
func (a *AuditConfig) GetMaxBackups() int {
	if a == nil || a.MaxBackups == nil {
		return DefaultAuditMaxBackups
	}

	return *a.MaxBackups
}

// GetMaxAgeDays returns the retention in days.
func (a *AuditConfig) GetMaxAgeDays() int {
	if a == nil || a.MaxAgeDays == nil {
		return DefaultAuditMaxAgeDays
	}

	return *a.MaxAgeDays
}
