package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/smykla-skalski/hookgate/internal/crashdump"
	"github.com/smykla-skalski/hookgate/internal/xdg"
	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/hook"
)

const (
	defaultMaxDumps = 10
	defaultMaxAge   = 30 * 24 * time.Hour
)

var (
	crashJSON     bool
	crashDryRun   bool
	crashMaxDumps int
	crashMaxAge   time.Duration
)

// crashState is what a crash dump knows about the command that panicked.
var crashState struct {
	sync.Mutex

	command  string
	cfg      *config.Config
	dispatch *crashdump.ContextInfo
}

func recordCrashConfig(cfg *config.Config) {
	crashState.Lock()
	defer crashState.Unlock()

	crashState.cfg = cfg
}

func recordCrashDispatch(event hook.Event, payload hook.Payload) {
	crashState.Lock()
	defer crashState.Unlock()

	crashState.dispatch = &crashdump.ContextInfo{
		Event:      string(event),
		SessionKey: payload.SessionKey(),
		ToolName:   payload.ToolName(),
	}
}

// capturePanic writes a crash dump for recovered and returns the error the
// command exits with.
func capturePanic(recovered any, stderr io.Writer) error {
	crashState.Lock()
	collector := crashdump.NewCollector(version, crashState.command)
	info := collector.Collect(recovered, crashState.dispatch, crashState.cfg)
	crashState.Unlock()

	store, err := crashdump.NewStore(xdg.DefaultResolver().CrashDir())
	if err == nil {
		var path string

		if path, err = store.Write(info); err == nil {
			fmt.Fprintf(stderr, "crash dump saved to: %s\n", path)
		}
	}

	if err != nil {
		fmt.Fprintf(stderr, "failed to write crash dump: %v\n", err)
	}

	return errors.Newf("panic: %s", info.PanicValue)
}

var crashCmd = &cobra.Command{
	Use:   "crash",
	Short: "Manage crash dumps",
	Long: `Manage the dumps hookgate writes to $XDG_STATE_HOME/hookgate/crashes
when it panics. Dumps carry the stack trace, the event being dispatched and a
configuration snapshot with secrets redacted.

Subcommands:
  list   List crash dumps, newest first
  show   Show one crash dump
  clean  Remove old crash dumps`,
}

var crashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List crash dumps",
	RunE:  runCrashList,
}

var crashShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show crash dump details",
	Args:  cobra.ExactArgs(1),
	RunE:  runCrashShow,
}

var crashCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old crash dumps",
	Long: `Remove crash dumps older than --max-age and all but the newest --max-dumps.

Examples:
  hookgate crash clean
  hookgate crash clean --max-dumps 3 --dry-run`,
	RunE: runCrashClean,
}

func init() {
	rootCmd.AddCommand(crashCmd)
	crashCmd.AddCommand(crashListCmd, crashShowCmd, crashCleanCmd)

	crashShowCmd.Flags().BoolVar(&crashJSON, "json", false, "Print the raw dump")

	flags := crashCleanCmd.Flags()
	flags.BoolVar(&crashDryRun, "dry-run", false, "Show what would be removed without deleting")
	flags.IntVar(&crashMaxDumps, "max-dumps", defaultMaxDumps, "Number of dumps to keep (0 for unlimited)")
	flags.DurationVar(&crashMaxAge, "max-age", defaultMaxAge, "Remove dumps older than this (0 for unlimited)")
}

func openCrashStore() (*crashdump.Store, error) {
	store, err := crashdump.NewStore(xdg.DefaultResolver().CrashDir())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open crash dump directory")
	}

	return store, nil
}

func runCrashList(cmd *cobra.Command, _ []string) error {
	store, err := openCrashStore()
	if err != nil {
		return err
	}

	summaries, err := store.List()
	if err != nil {
		return errors.Wrap(err, "failed to list crash dumps")
	}

	out := cmd.OutOrStdout()

	if len(summaries) == 0 {
		fmt.Fprintln(out, "No crash dumps found.")
		fmt.Fprintf(out, "Directory: %s\n", store.Dir())

		return nil
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.ID,
			s.Timestamp.Local().Format(time.DateTime),
			humanize.IBytes(uint64(max(s.Size, 0))),
			s.PanicValue,
		})
	}

	fmt.Fprintf(out, "%d crash dump(s) in %s\n", len(summaries), store.Dir())

	return renderTable(out, []string{"ID", "Time", "Size", "Panic"}, rows)
}

func runCrashShow(cmd *cobra.Command, args []string) error {
	store, err := openCrashStore()
	if err != nil {
		return err
	}

	info, err := store.Get(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if crashJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		return enc.Encode(info)
	}

	fmt.Fprintf(out, "ID:        %s\n", info.ID)
	fmt.Fprintf(out, "Time:      %s\n", info.Timestamp.Local().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Panic:     %s\n", info.PanicValue)
	fmt.Fprintf(out, "Version:   %s\n", info.Metadata.Version)

	if info.Metadata.Command != "" {
		fmt.Fprintf(out, "Command:   %s\n", info.Metadata.Command)
	}

	fmt.Fprintf(out, "Runtime:   %s %s/%s, %d goroutine(s)\n",
		info.Runtime.GoVersion, info.Runtime.GOOS, info.Runtime.GOARCH, info.Runtime.NumGoroutine)

	if c := info.Context; c != nil {
		fmt.Fprintf(out, "Event:     %s\n", c.Event)

		if c.SessionKey != "" {
			fmt.Fprintf(out, "Session:   %s\n", c.SessionKey)
		}

		if c.ToolName != "" {
			fmt.Fprintf(out, "Tool:      %s\n", c.ToolName)
		}
	}

	if info.StackTrace != "" {
		fmt.Fprintln(out, "\nStack trace:")

		for line := range strings.SplitSeq(strings.TrimRight(info.StackTrace, "\n"), "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}

	return nil
}

func runCrashClean(cmd *cobra.Command, _ []string) error {
	store, err := openCrashStore()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if crashDryRun {
		remove, err := store.Removable(crashMaxDumps, crashMaxAge, time.Now())
		if err != nil {
			return errors.Wrap(err, "failed to list crash dumps")
		}

		fmt.Fprintf(out, "Would remove %d dump(s)\n", len(remove))

		for _, s := range remove {
			fmt.Fprintf(out, "  %s\n", s.ID)
		}

		return nil
	}

	removed, err := store.Prune(crashMaxDumps, crashMaxAge)
	if err != nil {
		return errors.Wrap(err, "failed to prune crash dumps")
	}

	fmt.Fprintf(out, "Removed %d dump(s), keeping at most %d newer than %s\n",
		removed, crashMaxDumps, formatDuration(crashMaxAge))

	return nil
}

// exitOnPanic is deferred by main.
func exitOnPanic(code *int) {
	recovered := recover()
	if recovered == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", capturePanic(recovered, os.Stderr))

	*code = ExitCodeError
}
