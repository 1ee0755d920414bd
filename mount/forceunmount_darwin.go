package mount

import "os/exec"

// platformForceUnmount invokes diskutil unmount force, falling back to
// umount -f (spec §4.12 force_unmount, macOS).
func platformForceUnmount(mountpoint string) error {
	if err := exec.Command("diskutil", "unmount", "force", mountpoint).Run(); err == nil {
		return nil
	}
	return exec.Command("umount", "-f", mountpoint).Run()
}
