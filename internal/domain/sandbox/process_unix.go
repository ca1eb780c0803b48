//go:build !windows

package sandbox

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup launches the child in its own process group so the
// timeout kill can signal the whole group instead of a single pid.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate hard-kills the child and everything in its process group.
// Called from the timeout timer once the deadline passes.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = killGroup(cmd.Process.Pid, syscall.SIGKILL)
}

// killGroup signals every process in pid's process group.
func killGroup(pid int, sig syscall.Signal) error {
	return unix.Kill(-pid, sig)
}
