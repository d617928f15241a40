package main

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	internalconfig "github.com/smykla-skalski/hookgate/internal/config"
	"github.com/smykla-skalski/hookgate/internal/doctor"
	"github.com/smykla-skalski/hookgate/internal/doctor/checkers"
	"github.com/smykla-skalski/hookgate/internal/exec"
	"github.com/smykla-skalski/hookgate/internal/registry"
	"github.com/smykla-skalski/hookgate/internal/xdg"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

// recentCrashWindow is how far back doctor looks for crash dumps.
const recentCrashWindow = 7 * 24 * time.Hour

var (
	doctorFix        bool
	doctorVerbose    bool
	doctorCategories []string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the hookgate installation",
	Long: `Check configuration, hook commands and on-disk state.

Categories: config, hooks, storage.

Examples:
  hookgate doctor
  hookgate doctor --category hooks --verbose
  hookgate doctor --fix`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	flags := doctorCmd.Flags()
	flags.BoolVar(&doctorFix, "fix", false, "Apply available fixes")
	flags.BoolVarP(&doctorVerbose, "verbose", "v", false, "Show details for passing checks")
	flags.StringSliceVar(&doctorCategories, "category", nil, "Only run these categories")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	loader, err := internalconfig.NewKoanfLoader()
	if err != nil {
		return errors.Wrap(err, "failed to create config loader")
	}

	var log logger.Logger = logger.NewNoOpLogger()
	if traceMode {
		log = logger.NewWriterLogger(cmd.ErrOrStderr(), logger.LevelDebug)
	}

	// The config check loads through its own loader; the others share one
	// load so they agree on what they inspect.
	otherLoader, err := internalconfig.NewKoanfLoader()
	if err != nil {
		return errors.Wrap(err, "failed to create config loader")
	}

	sharedConfig := sync.OnceValues(func() (*config.Config, error) {
		return otherLoader.Load(cliFlags())
	})

	hookRegistry := func() (*registry.Registry, error) {
		cfg, err := sharedConfig()
		if err != nil {
			return nil, err
		}

		return registry.NewStore(nil).Reload(cfg.GetHooks())
	}

	auditSection := func() (*config.AuditConfig, error) {
		cfg, err := sharedConfig()
		if err != nil {
			return nil, err
		}

		return cfg.GetAudit(), nil
	}

	paths := xdg.DefaultResolver()

	reg := doctor.NewRegistry()
	reg.RegisterChecker(
		checkers.NewConfigChecker(loader, cliFlags()),
		checkers.NewHookCommandsChecker(hookRegistry, exec.NewToolChecker()),
		checkers.NewStateDirChecker(paths.StateDir()),
		checkers.NewAuditChecker(auditSection, log),
		checkers.NewCrashDumpChecker(paths.CrashDir(), recentCrashWindow),
	)
	reg.RegisterFixer(
		checkers.NewStateDirFixer(paths.StateDir()),
		checkers.NewCrashDumpFixer(paths.CrashDir()),
	)

	categories := make([]doctor.Category, 0, len(doctorCategories))
	for _, c := range doctorCategories {
		categories = append(categories, doctor.Category(c))
	}

	runner := doctor.NewRunner(reg, doctor.NewSimpleReporter(cmd.OutOrStdout()), log)

	err = runner.Run(cmd.Context(), doctor.RunOptions{
		Verbose:    doctorVerbose,
		Fix:        doctorFix,
		Categories: categories,
	})
	if errors.Is(err, doctor.ErrChecksFailed) {
		return &exitError{code: ExitCodeError}
	}

	return err
}
