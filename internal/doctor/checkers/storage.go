package checkers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/hookgate/internal/audit"
	"github.com/smykla-skalski/hookgate/internal/crashdump"
	"github.com/smykla-skalski/hookgate/internal/doctor"
	"github.com/smykla-skalski/hookgate/internal/xdg"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

const (
	stateDirCheckName  = "State directory writable"
	auditCheckName     = "Audit store readable"
	crashDumpCheckName = "No recent crashes"

	// FixCreateStateDir creates the state directory.
	FixCreateStateDir = "create_state_dir"

	// FixPruneCrashDumps removes old crash dumps.
	FixPruneCrashDumps = "prune_crash_dumps"
)

// StateDirChecker verifies the directory holding logs, audit records and
// crash dumps exists and accepts writes.
type StateDirChecker struct {
	dir string
}

// NewStateDirChecker creates a checker for dir.
func NewStateDirChecker(dir string) *StateDirChecker {
	return &StateDirChecker{dir: dir}
}

func (*StateDirChecker) Name() string              { return stateDirCheckName }
func (*StateDirChecker) Category() doctor.Category { return doctor.CategoryStorage }

// Check implements doctor.HealthChecker.
func (c *StateDirChecker) Check(context.Context) doctor.CheckResult {
	info, err := os.Stat(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return doctor.FailWarning(stateDirCheckName, "Directory does not exist yet").
			WithDetails("Path: " + c.dir).
			WithFixID(FixCreateStateDir)
	}

	if err != nil {
		return doctor.FailError(stateDirCheckName, "Cannot stat directory").WithDetails(err.Error())
	}

	if !info.IsDir() {
		return doctor.FailError(stateDirCheckName, "Path is not a directory").WithDetails("Path: " + c.dir)
	}

	probe, err := os.CreateTemp(c.dir, ".doctor-*")
	if err != nil {
		return doctor.FailError(stateDirCheckName, "Directory is not writable").WithDetails(err.Error())
	}

	_ = probe.Close()
	_ = os.Remove(probe.Name())

	return doctor.Pass(stateDirCheckName, c.dir)
}

// StateDirFixer creates the state directory with private permissions.
type StateDirFixer struct {
	dir string
}

// NewStateDirFixer creates a fixer for dir.
func NewStateDirFixer(dir string) *StateDirFixer {
	return &StateDirFixer{dir: dir}
}

func (*StateDirFixer) ID() string { return FixCreateStateDir }

func (f *StateDirFixer) Description() string {
	return "Create " + f.dir
}

// Fix implements doctor.Fixer.
func (f *StateDirFixer) Fix(context.Context) error {
	return xdg.EnsureDir(f.dir)
}

// AuditChecker opens the configured audit store and reads its statistics.
type AuditChecker struct {
	cfg func() (*config.AuditConfig, error)
	log logger.Logger
}

// NewAuditChecker creates a checker for the audit section cfg returns.
func NewAuditChecker(cfg func() (*config.AuditConfig, error), log logger.Logger) *AuditChecker {
	return &AuditChecker{cfg: cfg, log: log}
}

func (*AuditChecker) Name() string              { return auditCheckName }
func (*AuditChecker) Category() doctor.Category { return doctor.CategoryStorage }

// Check implements doctor.HealthChecker.
func (c *AuditChecker) Check(ctx context.Context) doctor.CheckResult {
	cfg, err := c.cfg()
	if err != nil {
		return doctor.Skip(auditCheckName, "Configuration did not load")
	}

	if !cfg.IsEnabled() {
		return doctor.Skip(auditCheckName, "Audit disabled")
	}

	store, err := audit.Open(cfg, c.log)
	if err != nil {
		return doctor.FailError(auditCheckName, "Cannot open audit store").WithDetails(err.Error())
	}

	defer store.Close()

	if _, err := os.Stat(store.Path()); errors.Is(err, os.ErrNotExist) {
		return doctor.Pass(auditCheckName, "No records yet").WithDetails("Path: " + store.Path())
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return doctor.FailError(auditCheckName, "Cannot read audit store").
			WithDetails("Path: "+store.Path(), err.Error())
	}

	return doctor.Pass(
		auditCheckName,
		fmt.Sprintf("%s, %d record(s), %s", stats.Backend, stats.EntryCount, stats.FormatSize()),
	).WithDetails("Path: " + stats.Path)
}

// CrashDumpChecker warns about crash dumps newer than a window.
type CrashDumpChecker struct {
	dir    string
	window time.Duration
	now    func() time.Time
}

// NewCrashDumpChecker creates a checker for dumps in dir written within window.
func NewCrashDumpChecker(dir string, window time.Duration) *CrashDumpChecker {
	return &CrashDumpChecker{dir: dir, window: window, now: time.Now}
}

func (*CrashDumpChecker) Name() string              { return crashDumpCheckName }
func (*CrashDumpChecker) Category() doctor.Category { return doctor.CategoryStorage }

// Check implements doctor.HealthChecker.
func (c *CrashDumpChecker) Check(context.Context) doctor.CheckResult {
	store, err := crashdump.NewStore(c.dir)
	if err != nil {
		return doctor.FailError(crashDumpCheckName, "Invalid crash dump directory").WithDetails(err.Error())
	}

	summaries, err := store.List()
	if err != nil {
		return doctor.FailError(crashDumpCheckName, "Cannot list crash dumps").WithDetails(err.Error())
	}

	var recent []string

	for _, s := range summaries {
		if c.now().Sub(s.Timestamp) <= c.window {
			recent = append(recent, fmt.Sprintf("%s: %s", s.ID, s.PanicValue))
		}
	}

	if len(recent) > 0 {
		return doctor.FailWarning(crashDumpCheckName, fmt.Sprintf("%d crash(es) recorded recently", len(recent))).
			WithDetails(append(recent, "Inspect with: hookgate crash show <id>")...).
			WithFixID(FixPruneCrashDumps)
	}

	return doctor.Pass(crashDumpCheckName, fmt.Sprintf("%d dump(s) on disk", len(summaries)))
}

// CrashDumpFixer removes the dumps the checker complains about.
type CrashDumpFixer struct {
	dir string
}

// NewCrashDumpFixer creates a fixer clearing dumps in dir.
func NewCrashDumpFixer(dir string) *CrashDumpFixer {
	return &CrashDumpFixer{dir: dir}
}

func (*CrashDumpFixer) ID() string { return FixPruneCrashDumps }

func (f *CrashDumpFixer) Description() string {
	return "Remove crash dumps in " + filepath.Clean(f.dir)
}

// Fix deletes every dump. Once read, a dump has done its job.
func (f *CrashDumpFixer) Fix(context.Context) error {
	store, err := crashdump.NewStore(f.dir)
	if err != nil {
		return err
	}

	summaries, err := store.List()
	if err != nil {
		return err
	}

	var errs []error

	for _, s := range summaries {
		if err := store.Delete(s.ID); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
