//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

// HideWindow sets the CREATE_NO_WINDOW flag so a spawned console
// subprocess (the CLI LLM provider) never flashes a visible console on
// Windows desktops.
func HideWindow(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
}

// Kill sends a signal to the process on Windows.
// Since signals are not fully supported, it maps SIGKILL to Process.Kill().
// SIGTERM is ignored (no-op) as Windows doesn't support graceful termination reliably via signals.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if sig == syscall.SIGKILL {
		return cmd.Process.Kill()
	}

	// Windows doesn't support SIGTERM in the same way.
	// For this specific use case, we rely on SIGKILL eventually.
	return nil
}
