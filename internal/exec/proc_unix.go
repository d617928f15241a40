//go:build unix

package exec

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the child in its own process group and makes
// cancellation kill the whole group, so descendants of a hung hook die too.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}

		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
