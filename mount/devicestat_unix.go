//go:build !windows

package mount

import (
	"fmt"
	"os"
	"syscall"
)

// devicesDiffer reports whether a and b live on different device ids
// (spec §4.12 mount-readiness check: st_dev differs ⇒ mounted).
func devicesDiffer(a, b string) (bool, error) {
	da, err := deviceID(a)
	if err != nil {
		return false, err
	}
	db, err := deviceID(b)
	if err != nil {
		return false, err
	}
	return da != db, nil
}

func deviceID(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("mount: no syscall.Stat_t for %s", path)
	}
	return uint64(st.Dev), nil
}
