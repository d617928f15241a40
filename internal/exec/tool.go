package exec

import "os/exec"

// ToolChecker resolves hook commands the way process spawning will.
type ToolChecker interface {
	// IsAvailable reports whether command resolves to an executable.
	IsAvailable(command string) bool

	// RequireTool returns a *ToolNotFoundError when command does not resolve.
	RequireTool(command string) error

	// Lookup returns the resolved path of command.
	Lookup(command string) (string, error)
}

// toolChecker implements ToolChecker.
type toolChecker struct{}

// NewToolChecker creates a new ToolChecker.
func NewToolChecker() *toolChecker {
	return &toolChecker{}
}

// IsAvailable reports whether command resolves to an executable.
func (t *toolChecker) IsAvailable(command string) bool {
	_, err := t.Lookup(command)

	return err == nil
}

// RequireTool returns an error if command does not resolve.
func (t *toolChecker) RequireTool(command string) error {
	if _, err := t.Lookup(command); err != nil {
		return err
	}

	return nil
}

// Lookup searches PATH for bare names and checks paths containing a slash
// directly.
func (*toolChecker) Lookup(command string) (string, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return "", &ToolNotFoundError{Tool: command, Err: err}
	}

	return path, nil
}

// ToolNotFoundError is returned when a command does not resolve.
type ToolNotFoundError struct {
	Tool string
	Err  error
}

// Error returns the error message.
func (e *ToolNotFoundError) Error() string {
	return "command not found or not executable: " + e.Tool
}

// Unwrap returns the lookup error.
func (e *ToolNotFoundError) Unwrap() error {
	return e.Err
}
