//go:build windows

package mount

import "os"

// processAlive reports whether pid names a live process. Windows has no
// null-signal equivalent; opening the process handle is enough to tell a
// live pid from a reused/exited one for our reaping purposes.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	return err == nil && proc != nil
}
