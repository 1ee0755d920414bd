package commands

import (
	"fmt"
	"os"
	"os/exec"
)

// execDaemon re-execs the current binary's mount command without --daemon,
// detached from the controlling terminal, and returns once the child has
// started (spec §4.13 is_daemon record; grounded on the self-re-exec
// daemonization pattern used by process-supervising CLIs).
func execDaemon(vaultPath, mountpoint string) error {
	executable, err := os.Executable()
	if err != nil {
		return exitError(ExitMountFailure, fmt.Errorf("oxcryptfs: locating executable: %w", err))
	}

	childArgs := []string{"mount", vaultPath, mountpoint, "--backend", mountBackendName}
	if mountLocalMode {
		childArgs = append(childArgs, "--local-mode")
	}
	if mountAttrTTL > 0 {
		childArgs = append(childArgs, "--attr-ttl", mountAttrTTL.String())
	}

	cmd := exec.Command(executable, childArgs...)
	cmd.Env = os.Environ()
	if err := detach(cmd); err != nil {
		return exitError(ExitMountFailure, err)
	}

	if err := cmd.Start(); err != nil {
		return exitError(ExitMountFailure, fmt.Errorf("oxcryptfs: starting daemon: %w", err))
	}
	fmt.Printf("mounting %s at %s in the background (pid %d)\n", vaultPath, mountpoint, cmd.Process.Pid)
	return nil
}
