package doctor

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/hookgate/pkg/logger"
)

// ErrChecksFailed is returned when at least one check ends in an error.
var ErrChecksFailed = errors.New("health checks failed")

// Runner orchestrates health checks and fixes
type Runner struct {
	registry *Registry
	reporter Reporter
	logger   logger.Logger
}

// RunOptions configures the doctor run behavior
type RunOptions struct {
	Verbose bool

	// Fix applies available fixes for failed checks, then re-runs them.
	Fix bool

	// Categories limits the run; empty means every category.
	Categories []Category
}

// NewRunner creates a new Runner
func NewRunner(registry *Registry, reporter Reporter, log logger.Logger) *Runner {
	return &Runner{registry: registry, reporter: reporter, logger: log}
}

// Run executes checks, reports them and applies fixes when asked. It
// returns ErrChecksFailed when errors remain.
func (r *Runner) Run(ctx context.Context, opts RunOptions) error {
	r.logger.Info("starting doctor run", "verbose", opts.Verbose, "fix", opts.Fix)

	results := r.registry.Run(ctx, opts.Categories...)
	r.reporter.Report(results, opts.Verbose)

	fixable := fixableResults(results)
	if !opts.Fix || len(fixable) == 0 {
		return r.exitError(results)
	}

	fixed := make([]string, 0, len(fixable))

	for _, result := range fixable {
		fixer, ok := r.registry.Fixer(result.FixID)
		if !ok {
			r.logger.Error("fixer not found", "fix_id", result.FixID)

			continue
		}

		r.logger.Info("applying fix", "check", result.Name, "fixer", fixer.ID())

		if err := fixer.Fix(ctx); err != nil {
			return errors.Wrapf(err, "failed to fix %q", result.Name)
		}

		fixed = append(fixed, result.Name)
	}

	rerun := r.registry.RunNamed(ctx, fixed)
	r.reporter.Report(rerun, opts.Verbose)

	return r.exitError(merge(results, rerun))
}

func fixableResults(results []CheckResult) []CheckResult {
	var fixable []CheckResult

	for _, result := range results {
		if result.Fixable() {
			fixable = append(fixable, result)
		}
	}

	return fixable
}

// merge replaces original results with re-run ones of the same name.
func merge(original, rerun []CheckResult) []CheckResult {
	byName := make(map[string]CheckResult, len(rerun))
	for _, result := range rerun {
		byName[result.Name] = result
	}

	merged := make([]CheckResult, 0, len(original))

	for _, result := range original {
		if again, ok := byName[result.Name]; ok {
			result = again
		}

		merged = append(merged, result)
	}

	return merged
}

func (r *Runner) exitError(results []CheckResult) error {
	errCount, warnCount, _ := Count(results)

	r.logger.Info("doctor finished", "errors", errCount, "warnings", warnCount, "total", len(results))

	if errCount > 0 {
		return errors.Wrapf(ErrChecksFailed, "%d error(s)", errCount)
	}

	return nil
}

// Count tallies errors, warnings and passed checks.
func Count(results []CheckResult) (errs, warnings, passed int) {
	for _, result := range results {
		switch {
		case result.IsPassed():
			passed++
		case result.IsError():
			errs++
		case result.IsWarning():
			warnings++
		}
	}

	return errs, warnings, passed
}
