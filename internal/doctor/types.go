// Package doctor runs health checks against a hookgate installation and
// applies the fixes they point at.
package doctor

//go:generate mockgen -source=types.go -destination=types_mock.go -package=doctor

import "context"

// Severity says how bad a failed check is.
type Severity string

// Status is the outcome of a single check.
type Status string

// Category groups related checks in reports and on the command line.
type Category string

const (
	SeverityError   Severity = "error"   // dispatching is broken
	SeverityWarning Severity = "warning" // hookgate works around it
	SeverityInfo    Severity = "info"

	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"

	CategoryConfig  Category = "config"
	CategoryHooks   Category = "hooks"
	CategoryStorage Category = "storage" // state dir, audit store, crash dumps
)

// CheckResult is what a HealthChecker reports. Category is filled in by the
// Registry.
type CheckResult struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Status   Status   `json:"status"`
	Message  string   `json:"message,omitempty"`
	Details  []string `json:"details,omitempty"`
	FixID    string   `json:"fix_id,omitempty"`
}

// HealthChecker inspects one aspect of the installation.
type HealthChecker interface {
	Name() string
	Category() Category
	Check(ctx context.Context) CheckResult
}

// Fixer repairs problems reported by results carrying its ID.
type Fixer interface {
	ID() string
	Description() string
	Fix(ctx context.Context) error
}

// Reporter renders a finished run.
type Reporter interface {
	Report(results []CheckResult, verbose bool)
}

func Pass(name, message string) CheckResult {
	return CheckResult{Name: name, Severity: SeverityInfo, Status: StatusPass, Message: message}
}

func FailError(name, message string) CheckResult {
	return CheckResult{Name: name, Severity: SeverityError, Status: StatusFail, Message: message}
}

func FailWarning(name, message string) CheckResult {
	return CheckResult{Name: name, Severity: SeverityWarning, Status: StatusFail, Message: message}
}

func Skip(name, message string) CheckResult {
	return CheckResult{Name: name, Severity: SeverityInfo, Status: StatusSkipped, Message: message}
}

// WithDetails returns r with extra detail lines.
func (r CheckResult) WithDetails(details ...string) CheckResult {
	r.Details = append(r.Details, details...)

	return r
}

// WithFixID returns r pointing at the Fixer with the given ID.
func (r CheckResult) WithFixID(id string) CheckResult {
	r.FixID = id

	return r
}

func (r CheckResult) failed(s Severity) bool { return r.Status == StatusFail && r.Severity == s }

func (r CheckResult) IsError() bool   { return r.failed(SeverityError) }
func (r CheckResult) IsWarning() bool { return r.failed(SeverityWarning) }
func (r CheckResult) IsPassed() bool  { return r.Status == StatusPass }
func (r CheckResult) IsSkipped() bool { return r.Status == StatusSkipped }

// Fixable reports whether r failed and names a fix.
func (r CheckResult) Fixable() bool { return r.Status == StatusFail && r.FixID != "" }
