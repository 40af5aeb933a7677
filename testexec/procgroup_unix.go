//go:build unix

package testexec

import (
	"os/exec"
	"syscall"
)

// killGroup runs cmd in its own process group and kills the whole group on
// cancellation, so test processes spawned by the shell do not outlive it.
func killGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
