package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/smykla-skalski/hookgate/internal/exec"
	"github.com/smykla-skalski/hookgate/internal/registry"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/hook"
)

var (
	hooksEvent string
	hooksJSON  bool
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Inspect configured hooks",
}

var hooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured hooks in dispatch order",
	Long: `List configured hooks in dispatch order, disabled ones included.

Examples:
  hookgate hooks list
  hookgate hooks list --event BeforeToolCall
  hookgate hooks list --json`,
	RunE: runHooksList,
}

var hooksCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that every enabled hook command resolves to an executable",
	Long: `Resolve the command of every enabled hook the way dispatch will and report
missing or non-executable ones. Exits 1 when any command is missing.`,
	RunE: runHooksCheck,
}

// hookView is the JSON form of a definition.
type hookView struct {
	Name       string            `json:"name"`
	Command    string            `json:"command"`
	Args       []string          `json:"args,omitempty"`
	Events     []hook.Event      `json:"events"`
	Tools      []string          `json:"tools,omitempty"`
	Timeout    string            `json:"timeout"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Enabled    bool              `json:"enabled"`
}

func init() {
	rootCmd.AddCommand(hooksCmd)
	hooksCmd.AddCommand(hooksListCmd)
	hooksCmd.AddCommand(hooksCheckCmd)

	hooksListCmd.Flags().StringVarP(&hooksEvent, "event", "e", "", "Only hooks bound to this event")
	hooksListCmd.Flags().BoolVar(&hooksJSON, "json", false, "Output as JSON")
}

// loadRegistry builds a registry snapshot from the merged configuration
// without starting an engine.
func loadRegistry() (*registry.Registry, *config.Config, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	reg, err := registry.NewStore(nil).Reload(cfg.GetHooks())
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading hook definitions")
	}

	return reg, cfg, nil
}

func runHooksList(cmd *cobra.Command, _ []string) error {
	reg, cfg, err := loadRegistry()
	if err != nil {
		return err
	}

	defs := reg.All()
	if hooksEvent != "" {
		filtered := defs[:0]

		for _, d := range defs {
			if d.HandlesEvent(hook.Event(hooksEvent)) {
				filtered = append(filtered, d)
			}
		}

		defs = filtered
	}

	out := cmd.OutOrStdout()

	if hooksJSON {
		views := make([]hookView, 0, len(defs))
		for _, d := range defs {
			views = append(views, hookView{
				Name:       d.Name(),
				Command:    d.Command(),
				Args:       d.Args(),
				Events:     d.Events(),
				Tools:      d.Tools(),
				Timeout:    d.Timeout().String(),
				WorkingDir: d.WorkingDir(),
				Env:        d.Env(),
				Enabled:    d.Enabled(),
			})
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		return errors.Wrap(enc.Encode(views), "writing hooks")
	}

	if len(defs) == 0 {
		fmt.Fprintln(out, "No hooks configured.")

		return nil
	}

	hooksCfg := cfg.GetHooks()
	fmt.Fprintf(out, "%d hook(s), at most %d running at once, output limit %s per stream\n\n",
		len(defs),
		hooksCfg.GetMaxConcurrent(),
		humanize.IBytes(uint64(hooksCfg.GetOutputLimit())),
	)

	rows := make([][]string, 0, len(defs))

	for _, d := range defs {
		events := make([]string, 0, len(d.Events()))
		for _, e := range d.Events() {
			events = append(events, e.String())
		}

		tools := strings.Join(d.Tools(), ",")
		if tools == "" {
			tools = "*"
		}

		enabled := "yes"
		if !d.Enabled() {
			enabled = "no"
		}

		rows = append(rows, []string{
			d.Name(),
			strings.Join(events, ","),
			tools,
			d.CommandLine(),
			formatDuration(d.Timeout()),
			enabled,
		})
	}

	return renderTable(out, []string{"Name", "Events", "Tools", "Command", "Timeout", "Enabled"}, rows)
}

func runHooksCheck(cmd *cobra.Command, _ []string) error {
	reg, _, err := loadRegistry()
	if err != nil {
		return err
	}

	checker := exec.NewToolChecker()
	out := cmd.OutOrStdout()
	missing := 0

	for _, d := range reg.All() {
		if !d.Enabled() {
			continue
		}

		path, err := checker.Lookup(d.Command())
		if err != nil {
			missing++

			fmt.Fprintf(out, "✗ %s: %v\n", d.Name(), err)

			continue
		}

		fmt.Fprintf(out, "✓ %s: %s\n", d.Name(), path)
	}

	if missing > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d hook command(s) missing; dispatch will skip them (fail-open)\n", missing)

		return &exitError{code: ExitCodeError}
	}

	return nil
}
