// Package main provides the hookgate command line.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	internalconfig "github.com/smykla-skalski/hookgate/internal/config"
	"github.com/smykla-skalski/hookgate/internal/engine"
	"github.com/smykla-skalski/hookgate/internal/xdg"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

const (
	// ExitCodeOK is returned on success and on Allow decisions.
	ExitCodeOK = 0

	// ExitCodeError is returned when a command fails.
	ExitCodeError = 1

	// ExitCodeDenied is returned by dispatch on a Deny decision.
	ExitCodeDenied = 2
)

var (
	debugMode     bool
	traceMode     bool
	timeoutFlag   string
	maxConcurrent int
	noAudit       bool
	auditBackend  string
)

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() (code int) {
	defer exitOnPanic(&code)

	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return ExitCodeError
	}

	return ExitCodeOK
}

var rootCmd = &cobra.Command{
	Use:   "hookgate",
	Short: "Run external hook programs at gateway lifecycle events",
	Long: `hookgate runs independently-authored hook programs at fixed lifecycle
events, turns their exit codes and output into verdicts and composes them into
one allow/deny decision.

Hooks are configured in $XDG_CONFIG_HOME/hookgate/config.toml and in the
project's .hookgate/config.toml or hookgate.toml.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		crashState.Lock()
		crashState.command = cmd.CommandPath()
		crashState.Unlock()
	},
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.BoolVar(&debugMode, "debug", false, "Enable debug logging")
	flags.BoolVar(&traceMode, "trace", false, "Write debug logs to stderr instead of the log file")
	flags.StringVar(&timeoutFlag, "timeout", "", "Default per-hook timeout (e.g. 3s)")
	flags.IntVar(&maxConcurrent, "max-concurrent", 0, "Maximum number of hook processes running at once")
	flags.BoolVar(&noAudit, "no-audit", false, "Do not persist invocation records")
	flags.StringVar(&auditBackend, "audit-backend", "", "Audit backend (jsonl or sqlite)")
}

// cliFlags returns the persistent flags in the form the loader expects.
func cliFlags() map[string]any {
	flags := map[string]any{
		"timeout":        timeoutFlag,
		"max-concurrent": maxConcurrent,
		"no-audit":       noAudit,
		"audit-backend":  auditBackend,
	}

	if debugMode || traceMode {
		flags["log-level"] = string(logger.LevelDebug)
	}

	return flags
}

// loadConfig loads and validates the merged configuration.
func loadConfig() (*internalconfig.KoanfLoader, *config.Config, error) {
	loader, err := internalconfig.NewKoanfLoader()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create config loader")
	}

	cfg, err := loader.Load(cliFlags())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load configuration")
	}

	recordCrashConfig(cfg)

	return loader, cfg, nil
}

// setupLogger builds the logger from the log section, or a stderr logger
// when --trace is set.
func setupLogger(cfg *config.Config, stderr io.Writer) (logger.Logger, error) {
	if traceMode {
		return logger.NewWriterLogger(stderr, logger.LevelDebug), nil
	}

	level, err := logger.ParseLevel(cfg.GetLog().GetLevel())
	if err != nil {
		return nil, err
	}

	path := cfg.GetLog().File
	if path == "" {
		path = xdg.LogFile()
	}

	path, err = xdg.ExpandPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "log file")
	}

	log, err := logger.NewFileLogger(path, level)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create logger")
	}

	return log, nil
}

// newEngine loads the configuration and builds an engine from it.
func newEngine(cmd *cobra.Command) (*engine.Engine, *internalconfig.KoanfLoader, logger.Logger, error) {
	loader, cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := setupLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, err
	}

	e, err := engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		return nil, nil, nil, err
	}

	log.Debug("configuration loaded", "sources", loader.Sources(), "hooks", e.Registry().Len())

	return e, loader, log, nil
}
