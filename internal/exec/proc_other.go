//go:build !unix

package exec

import "os/exec"

// configureProcessGroup kills only the direct child; process groups are a
// unix concept.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}
