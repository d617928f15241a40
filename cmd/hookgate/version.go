package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

const shortCommitLength = 12

// Build information set by ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprint(cmd.OutOrStdout(), versionString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func versionString() string {
	var b strings.Builder

	fmt.Fprintf(&b, "hookgate %s\n", version)
	fmt.Fprintf(&b, "  commit:  %s\n", commit)
	fmt.Fprintf(&b, "  built:   %s\n", date)
	fmt.Fprintf(&b, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	info, ok := debug.ReadBuildInfo()
	if !ok || commit != "unknown" {
		return b.String()
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			fmt.Fprintf(&b, "  vcs.rev: %s\n", setting.Value[:min(shortCommitLength, len(setting.Value))])
		}

		if setting.Key == "vcs.modified" && setting.Value == "true" {
			b.WriteString("  modified: true\n")
		}
	}

	return b.String()
}
