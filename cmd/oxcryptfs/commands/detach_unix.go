//go:build !windows

package commands

import (
	"os/exec"
	"syscall"
)

// detach puts cmd in its own session so it survives the parent's exit
// (spec §6 daemon mode: the child outlives the foreground mount command).
func detach(cmd *exec.Cmd) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return nil
}
