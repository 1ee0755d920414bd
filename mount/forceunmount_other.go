//go:build !linux && !darwin

package mount

import "fmt"

// platformForceUnmount has no generic equivalent on this platform; a
// backend targeting it (e.g. WinFsp on Windows) must implement its own
// forceUnmount instead of relying on this fallback.
func platformForceUnmount(mountpoint string) error {
	return fmt.Errorf("mount: force unmount not implemented on this platform for %s", mountpoint)
}
