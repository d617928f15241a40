package hook

// VerdictKind is the kind of answer a single hook gave.
type VerdictKind int

const (
	// VerdictContinue lets the dispatch proceed unchanged.
	VerdictContinue VerdictKind = iota

	// VerdictBlock stops the dispatch with a reason.
	VerdictBlock

	// VerdictModify replaces the payload for the following hooks.
	VerdictModify
)

// String returns the lowercase kind name.
func (k VerdictKind) String() string {
	switch k {
	case VerdictContinue:
		return "continue"
	case VerdictBlock:
		return "block"
	case VerdictModify:
		return "modify"
	default:
		return "unknown"
	}
}

// Verdict is one hook's typed answer for one invocation.
type Verdict struct {
	// Kind selects which of Reason and Data is meaningful.
	Kind VerdictKind

	// Reason is the block reason.
	Reason string

	// Data is the replacement payload of a Modify verdict.
	Data any

	// Diagnostic explains why a verdict was downgraded to Continue
	// (timeout, spawn failure, malformed output, illegal kind). It is
	// informational only and never fails the triggering operation.
	Diagnostic error
}

// Continue returns a Continue verdict.
func Continue() Verdict {
	return Verdict{Kind: VerdictContinue}
}

// ContinueWith returns a Continue verdict carrying a diagnostic.
func ContinueWith(diagnostic error) Verdict {
	return Verdict{Kind: VerdictContinue, Diagnostic: diagnostic}
}

// Block returns a Block verdict.
func Block(reason string) Verdict {
	return Verdict{Kind: VerdictBlock, Reason: reason}
}

// Modify returns a Modify verdict.
func Modify(data any) Verdict {
	return Verdict{Kind: VerdictModify, Data: data}
}

// IsContinue reports whether the verdict is Continue.
func (v Verdict) IsContinue() bool {
	return v.Kind == VerdictContinue
}

// IsBlock reports whether the verdict is Block.
func (v Verdict) IsBlock() bool {
	return v.Kind == VerdictBlock
}

// IsModify reports whether the verdict is Modify.
func (v Verdict) IsModify() bool {
	return v.Kind == VerdictModify
}

// Output is the schema of a hook's stdout when it wants to modify the payload:
//
//	{"action": "modify", "data": <value>}
type Output struct {
	// Action selects the verdict. Only "modify" is recognized.
	Action string `json:"action" jsonschema:"description=Verdict action; only modify is recognized"`

	// Data is the replacement value for the event's modifiable field.
	Data any `json:"data,omitempty" jsonschema:"description=Replacement payload"`
}

// ActionModify is the only recognized Output action.
const ActionModify = "modify"
