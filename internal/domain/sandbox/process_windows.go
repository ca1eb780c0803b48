//go:build windows

package sandbox

import "os/exec"

// setProcessGroup is a no-op on Windows: process-group signaling is the
// Unix half of the timeout kill.
func setProcessGroup(cmd *exec.Cmd) {}

// terminate hard-kills the child. Windows has no process-group signal,
// so a tool that spawns its own children may leave them behind.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
