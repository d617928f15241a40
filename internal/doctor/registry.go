package doctor

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry holds health checkers and fixers. Results come back in
// registration order regardless of which check finishes first.
type Registry struct {
	mu       sync.RWMutex
	checkers []HealthChecker
	fixers   map[string]Fixer
}

// NewRegistry creates a new Registry
func NewRegistry() *Registry {
	return &Registry{fixers: make(map[string]Fixer)}
}

// RegisterChecker registers a health checker
func (r *Registry) RegisterChecker(checkers ...HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkers = append(r.checkers, checkers...)
}

// RegisterFixer registers a fixer
func (r *Registry) RegisterFixer(fixers ...Fixer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range fixers {
		r.fixers[f.ID()] = f
	}
}

// Run executes the checkers in the given categories concurrently, or all of
// them when none are given.
func (r *Registry) Run(ctx context.Context, categories ...Category) []CheckResult {
	r.mu.RLock()

	selected := make([]HealthChecker, 0, len(r.checkers))
	for _, c := range r.checkers {
		if len(categories) == 0 || slices.Contains(categories, c.Category()) {
			selected = append(selected, c)
		}
	}

	r.mu.RUnlock()

	return runCheckers(ctx, selected)
}

// RunNamed re-runs the checkers with the given names.
func (r *Registry) RunNamed(ctx context.Context, names []string) []CheckResult {
	r.mu.RLock()

	selected := make([]HealthChecker, 0, len(names))
	for _, c := range r.checkers {
		if slices.Contains(names, c.Name()) {
			selected = append(selected, c)
		}
	}

	r.mu.RUnlock()

	return runCheckers(ctx, selected)
}

func runCheckers(ctx context.Context, checkers []HealthChecker) []CheckResult {
	results := make([]CheckResult, len(checkers))
	g, gctx := errgroup.WithContext(ctx)

	for i, checker := range checkers {
		g.Go(func() error {
			result := checker.Check(gctx)
			result.Category = checker.Category()

			if result.Name == "" {
				result.Name = checker.Name()
			}

			results[i] = result

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// Fixer returns the fixer registered under id.
//
//nolint:ireturn // Fixer interface for polymorphism
func (r *Registry) Fixer(id string) (Fixer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fixers[id]

	return f, ok
}

// CheckerCount returns the total number of registered checkers
func (r *Registry) CheckerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.checkers)
}
