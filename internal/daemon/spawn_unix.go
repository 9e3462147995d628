//go:build !windows

package daemon

import (
	"errors"
	"os/exec"
	"syscall"
)

// detach puts the spawned daemon in its own session so it survives the
// CLI process and its terminal.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// terminate sends SIGTERM to a daemon that stopped answering its HTTP
// API. A vanished process is not an error.
func terminate(pid int) error {
	err := syscall.Kill(pid, syscall.SIGTERM)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
