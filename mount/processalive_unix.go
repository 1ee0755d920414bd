//go:build !windows

package mount

import (
	"os"
	"syscall"
)

// processAlive reports whether pid names a live process, by sending the
// null signal (spec §4.13 stale-entry reap: "pid is not alive").
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
