//go:build windows

package commands

import (
	"os/exec"
	"syscall"
)

// detach starts cmd as a new process group detached from the parent's
// console (Windows has no setsid; CREATE_NEW_PROCESS_GROUP is the nearest
// equivalent).
func detach(cmd *exec.Cmd) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: 0x00000200}
	return nil
}
