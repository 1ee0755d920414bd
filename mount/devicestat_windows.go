//go:build windows

package mount

import "fmt"

// devicesDiffer has no direct Windows equivalent in this codebase (mounts
// are drive letters or WinFsp reparse points, not Unix-style device ids);
// Windows backends confirm readiness through their own mechanism instead
// of the shared mount-readiness check.
func devicesDiffer(a, b string) (bool, error) {
	return false, fmt.Errorf("mount: device-id readiness check not supported on windows")
}
