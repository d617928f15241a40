package doctor

import (
	"fmt"
	"io"
	"slices"
	"strings"
)

var categoryOrder = []Category{CategoryConfig, CategoryHooks, CategoryStorage}

var categoryNames = map[Category]string{
	CategoryConfig:  "Configuration",
	CategoryHooks:   "Hooks",
	CategoryStorage: "Storage",
}

// SimpleReporter prints a checklist grouped by category.
type SimpleReporter struct {
	w io.Writer
}

// NewSimpleReporter creates a reporter writing to w.
func NewSimpleReporter(w io.Writer) *SimpleReporter {
	return &SimpleReporter{w: w}
}

// Report implements Reporter.
func (s *SimpleReporter) Report(results []CheckResult, verbose bool) {
	grouped := make(map[Category][]CheckResult)
	for _, result := range results {
		grouped[result.Category] = append(grouped[result.Category], result)
	}

	categories := slices.Clone(categoryOrder)

	for category := range grouped {
		if !slices.Contains(categories, category) {
			categories = append(categories, category)
		}
	}

	for _, category := range categories {
		if len(grouped[category]) == 0 {
			continue
		}

		fmt.Fprintf(s.w, "%s:\n", categoryName(category))

		for _, result := range grouped[category] {
			s.printResult(result, verbose)
		}

		fmt.Fprintln(s.w)
	}

	errs, warnings, passed := Count(results)
	fmt.Fprintf(s.w, "Summary: %d error(s), %d warning(s), %d passed\n", errs, warnings, passed)
}

func (s *SimpleReporter) printResult(result CheckResult, verbose bool) {
	fmt.Fprintf(s.w, "  %s %s", statusIcon(result), result.Name)

	if result.Message != "" {
		fmt.Fprintf(s.w, " - %s", result.Message)
	}

	fmt.Fprintln(s.w)

	if verbose || result.Status == StatusFail {
		for _, detail := range result.Details {
			fmt.Fprintf(s.w, "     %s\n", detail)
		}
	}

	if result.Fixable() {
		fmt.Fprintln(s.w, "     → Run: hookgate doctor --fix")
	}
}

func categoryName(category Category) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}

	if category == "" {
		return "Other"
	}

	s := string(category)

	return strings.ToUpper(s[:1]) + s[1:]
}

func statusIcon(result CheckResult) string {
	switch result.Status {
	case StatusPass:
		return "✓"
	case StatusFail:
		if result.Severity == SeverityWarning {
			return "!"
		}

		return "✗"
	case StatusSkipped:
		return "-"
	default:
		return "?"
	}
}
