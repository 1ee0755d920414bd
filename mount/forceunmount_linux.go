package mount

import "os/exec"

// platformForceUnmount invokes fusermount -uz, falling back to a lazy
// umount -l if fusermount is unavailable or fails (spec §4.12
// force_unmount, Linux).
func platformForceUnmount(mountpoint string) error {
	if _, err := exec.LookPath("fusermount"); err == nil {
		if err := exec.Command("fusermount", "-uz", mountpoint).Run(); err == nil {
			return nil
		}
	}
	return exec.Command("umount", "-l", mountpoint).Run()
}
