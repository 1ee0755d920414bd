package commands

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

var unmountForce bool

var unmountCmd = &cobra.Command{
	Use:     "unmount <mountpoint>",
	Aliases: []string{"umount"},
	Short:   "Unmount a vault and clear its mount-state record",
	Args:    cobra.ExactArgs(1),
	RunE:    runUnmount,
}

func init() {
	unmountCmd.Flags().BoolVarP(&unmountForce, "force", "f", false, "force-unmount without waiting for in-flight operations")
}

func runUnmount(cmd *cobra.Command, args []string) error {
	mountpoint := args[0]

	store, err := openStateStore()
	if err != nil {
		return exitError(ExitMountFailure, err)
	}
	records, err := store.List()
	if err != nil {
		return exitError(ExitMountFailure, err)
	}

	found := false
	for _, rec := range records {
		if rec.Mountpoint == mountpoint {
			found = true
			break
		}
	}
	if !found {
		return exitError(ExitMountFailure, fmt.Errorf("oxcryptfs: no managed mount recorded at %s", mountpoint))
	}

	if err := unmountViaPlatform(mountpoint, unmountForce); err != nil {
		return exitError(ExitUnmountTimeout, fmt.Errorf("oxcryptfs: unmounting %s: %w", mountpoint, err))
	}
	if err := store.Remove(mountpoint); err != nil {
		PrintErr("oxcryptfs: clearing mount state: %v", err)
	}
	fmt.Printf("unmounted %s\n", mountpoint)
	return nil
}

// unmountViaPlatform drives the same graceful-then-forced sequence
// *mount.Handle would (spec §4.12 force_unmount), but from a separate CLI
// invocation: the process that owns the live *mount.Handle is gone, and
// only the persisted record in mount.Store survives it (spec §4.13).
func unmountViaPlatform(mountpoint string, force bool) error {
	if !force {
		if _, err := exec.LookPath("fusermount"); err == nil {
			if exec.Command("fusermount", "-u", mountpoint).Run() == nil {
				return nil
			}
		}
		if _, err := exec.LookPath("umount"); err == nil {
			if exec.Command("umount", mountpoint).Run() == nil {
				return nil
			}
		}
	}
	return forceUnmountExternal(mountpoint)
}

func forceUnmountExternal(mountpoint string) error {
	if _, err := exec.LookPath("diskutil"); err == nil {
		if exec.Command("diskutil", "unmount", "force", mountpoint).Run() == nil {
			return nil
		}
	}
	if _, err := exec.LookPath("fusermount"); err == nil {
		if exec.Command("fusermount", "-uz", mountpoint).Run() == nil {
			return nil
		}
	}
	if _, err := exec.LookPath("umount"); err == nil {
		if exec.Command("umount", "-f", mountpoint).Run() == nil {
			return nil
		}
	}
	return fmt.Errorf("mount: no platform unmount command succeeded for %s", mountpoint)
}
