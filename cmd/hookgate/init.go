package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	internalconfig "github.com/smykla-skalski/hookgate/internal/config"
	"github.com/smykla-skalski/hookgate/internal/xdg"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/hook"
)

var (
	globalFlag bool
	forceFlag  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a starter configuration file with the default engine settings and a
disabled example hook.

By default the project file .hookgate/config.toml is created. Use --global to
write $XDG_CONFIG_HOME/hookgate/config.toml instead. Existing files are only
replaced with --force.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&globalFlag, "global", "g", false, "Initialize global configuration")
	initCmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Overwrite existing configuration file")
}

func runInit(cmd *cobra.Command, _ []string) error {
	writer := internalconfig.NewWriter()
	cfg := starterConfig()

	var (
		path string
		err  error
	)

	if globalFlag {
		path, err = writer.WriteGlobal(cfg, forceFlag)
	} else {
		path, err = writer.WriteProject(cfg, forceFlag)
	}

	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)

	return nil
}

// starterConfig returns the defaults plus one disabled example hook.
func starterConfig() *config.Config {
	cfg := internalconfig.DefaultConfig()
	disabled := false

	cfg.Hooks.Definitions = []*config.HookConfig{{
		Name:    "block-dangerous",
		Command: filepath.Join(xdg.HooksDir(), "block-dangerous"),
		Events:  []string{hook.EventBeforeToolCall.String()},
		Tools:   []string{"exec", "shell*"},
		Enabled: &disabled,
	}}

	return cfg
}
