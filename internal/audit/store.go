package audit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/smykla-skalski/hookgate/internal/xdg"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

const (
	// auditFilePermissions is the permission mode for audit files.
	auditFilePermissions = 0o600

	// auditDirPermissions is the permission mode for the audit directory.
	auditDirPermissions = 0o700

	// bytesPerMB is the number of bytes per megabyte.
	bytesPerMB = 1024 * 1024

	// hoursPerDay converts retention days to a duration.
	hoursPerDay = 24
)

// ErrUnknownBackend is returned for an unsupported audit backend name.
var ErrUnknownBackend = errors.New("unknown audit backend")

// Filter selects records for List. Zero fields match everything.
type Filter struct {
	Hook    string
	Event   hook.Event
	Outcome hook.Outcome
	Since   time.Time

	// Limit caps the number of records returned, newest first.
	Limit int
}

// Match reports whether rec passes the filter, ignoring Limit.
func (f Filter) Match(rec *hook.InvocationRecord) bool {
	switch {
	case f.Hook != "" && rec.HookName != f.Hook:
		return false
	case f.Event != "" && rec.Event != f.Event:
		return false
	case f.Outcome != "" && rec.Outcome != f.Outcome:
		return false
	case !f.Since.IsZero() && rec.StartedAt.Before(f.Since):
		return false
	default:
		return true
	}
}

// Stats describes a persistent store.
type Stats struct {
	Backend     string               `json:"backend"`
	Path        string               `json:"path"`
	SizeBytes   int64                `json:"size_bytes"`
	EntryCount  int                  `json:"entry_count"`
	BackupCount int                  `json:"backup_count"`
	Outcomes    map[hook.Outcome]int `json:"outcomes"`
	ModTime     time.Time            `json:"mod_time"`
}

// FormatSize formats the size in human-readable form.
func (s *Stats) FormatSize() string {
	return humanize.IBytes(uint64(max(s.SizeBytes, 0)))
}

// Store is a persistent Sink that can be queried.
type Store interface {
	Sink

	// List returns matching records, newest first.
	List(ctx context.Context, filter Filter) ([]*hook.InvocationRecord, error)

	// Stats describes the store.
	Stats(ctx context.Context) (*Stats, error)

	// Cleanup drops records older than the retention.
	Cleanup(ctx context.Context) error

	// Path returns the backing file.
	Path() string

	Close() error
}

// Open opens the store selected by cfg. The path defaults to the XDG state
// directory.
func Open(cfg *config.AuditConfig, log logger.Logger) (Store, error) {
	path := ""
	if cfg != nil {
		path = cfg.Path
	}

	if path == "" {
		path = xdg.AuditFile(cfg.GetBackend())
	}

	path, err := xdg.ExpandPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "audit path")
	}

	switch backend := cfg.GetBackend(); backend {
	case config.AuditBackendJSONL:
		return NewJSONLSink(path, cfg, WithLogger(log)), nil
	case config.AuditBackendSQLite:
		return OpenSQLite(path, cfg, WithLogger(log))
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", backend)
	}
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger logger.Logger
	now    func() time.Time
}

func newOptions(opts []Option) options {
	o := options{logger: logger.NewNoOpLogger(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// WithLogger sets the logger used for write failures.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithTimeFunc sets the clock used for rotation names and retention.
func WithTimeFunc(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

func retention(cfg *config.AuditConfig) time.Duration {
	return time.Duration(cfg.GetMaxAgeDays()) * hoursPerDay * time.Hour
}
