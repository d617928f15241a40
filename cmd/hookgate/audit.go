package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/smykla-skalski/hookgate/internal/audit"
	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

// maxErrorDisplayLen is the max length of the error column before truncation.
const maxErrorDisplayLen = 48

var (
	auditHook    string
	auditEvent   string
	auditOutcome string
	auditSince   time.Duration
	auditLimit   int
	auditJSON    bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect hook invocation records",
	Long: `Inspect the persisted hook invocation records.

Subcommands:
  list     List records, newest first
  stats    Show store statistics
  cleanup  Drop records older than the retention and rotate files`,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invocation records",
	Long: `List invocation records, newest first, with optional filtering.

Examples:
  hookgate audit list
  hookgate audit list --hook block-dangerous --limit 10
  hookgate audit list --outcome timed_out --since 24h
  hookgate audit list --json`,
	RunE: runAuditList,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show audit store statistics",
	RunE:  runAuditStats,
}

var auditCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop expired records",
	RunE:  runAuditCleanup,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditStatsCmd)
	auditCmd.AddCommand(auditCleanupCmd)

	flags := auditListCmd.Flags()
	flags.StringVar(&auditHook, "hook", "", "Filter by hook name")
	flags.StringVar(&auditEvent, "event", "", "Filter by event")
	flags.StringVar(&auditOutcome, "outcome", "", "Filter by outcome (ok, timed_out, spawn_failed, cancelled)")
	flags.DurationVar(&auditSince, "since", 0, "Only records newer than this (e.g. 24h)")
	flags.IntVar(&auditLimit, "limit", 0, "Limit number of records (0 = all)")
	flags.BoolVar(&auditJSON, "json", false, "Output records as JSON")

	auditStatsCmd.Flags().BoolVar(&auditJSON, "json", false, "Output statistics as JSON")
}

func openAudit(cmd *cobra.Command) (audit.Store, logger.Logger, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log, err := setupLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	store, err := audit.Open(cfg.GetAudit(), log)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening audit store")
	}

	return store, log, nil
}

func runAuditList(cmd *cobra.Command, _ []string) error {
	store, log, err := openAudit(cmd)
	if err != nil {
		return err
	}

	defer store.Close()

	filter := audit.Filter{
		Hook:    auditHook,
		Event:   hook.Event(auditEvent),
		Outcome: hook.Outcome(auditOutcome),
		Limit:   auditLimit,
	}

	if auditSince > 0 {
		filter.Since = time.Now().Add(-auditSince)
	}

	log.Debug("audit list command invoked", "filter", fmt.Sprintf("%+v", filter))

	records, err := store.List(cmd.Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing audit records")
	}

	out := cmd.OutOrStdout()

	if auditJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		if records == nil {
			records = []*hook.InvocationRecord{}
		}

		return errors.Wrap(enc.Encode(records), "writing records")
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No audit records found.")

		return nil
	}

	rows := make([][]string, 0, len(records))

	for _, rec := range records {
		exit := "-"
		if rec.ExitCode != nil {
			exit = strconv.Itoa(*rec.ExitCode)
		}

		rows = append(rows, []string{
			rec.StartedAt.Local().Format(time.DateTime),
			rec.HookName,
			rec.Event.String(),
			rec.Outcome.String(),
			exit,
			formatDuration(rec.Duration()),
			truncate(rec.Error, maxErrorDisplayLen),
		})
	}

	return renderTable(out, []string{"Time", "Hook", "Event", "Outcome", "Exit", "Duration", "Error"}, rows)
}

func runAuditStats(cmd *cobra.Command, _ []string) error {
	store, _, err := openAudit(cmd)
	if err != nil {
		return err
	}

	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "reading audit stats")
	}

	out := cmd.OutOrStdout()

	if auditJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		return errors.Wrap(enc.Encode(stats), "writing stats")
	}

	fmt.Fprintf(out, "Backend:  %s\n", stats.Backend)
	fmt.Fprintf(out, "Path:     %s\n", stats.Path)
	fmt.Fprintf(out, "Size:     %s\n", stats.FormatSize())
	fmt.Fprintf(out, "Records:  %d\n", stats.EntryCount)

	if stats.BackupCount > 0 {
		fmt.Fprintf(out, "Backups:  %d\n", stats.BackupCount)
	}

	if !stats.ModTime.IsZero() {
		fmt.Fprintf(out, "Modified: %s ago\n", formatDuration(time.Since(stats.ModTime)))
	}

	if len(stats.Outcomes) > 0 {
		fmt.Fprintln(out, "\nBy outcome:")

		for _, outcome := range slices.Sorted(maps.Keys(stats.Outcomes)) {
			fmt.Fprintf(out, "  %-13s %d\n", outcome, stats.Outcomes[outcome])
		}
	}

	return nil
}

func runAuditCleanup(cmd *cobra.Command, _ []string) error {
	store, _, err := openAudit(cmd)
	if err != nil {
		return err
	}

	defer store.Close()

	if err := store.Cleanup(cmd.Context()); err != nil {
		return errors.Wrap(err, "cleaning up audit store")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cleaned up %s\n", store.Path())

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n-3] + "..."
}
