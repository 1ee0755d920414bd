package commands

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/oxcrypt/oxcryptfs/mount"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	mountBackendName string
	mountLocalMode   bool
	mountAttrTTL     time.Duration
	mountDaemon      bool
)

var mountCmd = &cobra.Command{
	Use:   "mount <vault-path> <mountpoint>",
	Short: "Mount a vault",
	Long: `Mount mounts the Cryptomator vault at vault-path onto mountpoint.

The vault passphrase is read from OXCRYPT_PASSWORD if set, otherwise
prompted for interactively. Runs in the foreground until interrupted
(Ctrl-C) unless --daemon is given.

Examples:
  oxcryptfs mount ~/Vaults/work /mnt/work
  OXCRYPT_PASSWORD=hunter2 oxcryptfs mount ~/Vaults/work /mnt/work --local-mode`,
	Args: cobra.ExactArgs(2),
	RunE: runMount,
}

func init() {
	mountCmd.Flags().StringVar(&mountBackendName, "backend", "fuse", "mount backend (fuse, fskit, webdav, nfs, fileprovider)")
	mountCmd.Flags().BoolVar(&mountLocalMode, "local-mode", false, "use short attribute TTLs suitable for local disk")
	mountCmd.Flags().DurationVar(&mountAttrTTL, "attr-ttl", 0, "override the backend's attribute TTL")
	mountCmd.Flags().BoolVar(&mountDaemon, "daemon", false, "re-exec in the background and return immediately")
}

func runMount(cmd *cobra.Command, args []string) error {
	vaultPath, mountpoint := args[0], args[1]

	if mountDaemon {
		return execDaemon(vaultPath, mountpoint)
	}

	password, err := resolvePassword()
	if err != nil {
		return exitError(ExitUnlockFailure, err)
	}

	registry := mount.NewRegistry()
	registry.Register(mount.NewFuseBackend())
	backend, found := registry.Get(mountBackendName)
	if !found {
		return exitError(ExitMountFailure, fmt.Errorf("oxcryptfs: unknown backend %q", mountBackendName))
	}
	if !backend.IsAvailable() {
		return exitError(ExitMountFailure, fmt.Errorf("oxcryptfs: backend %q unavailable: %s", mountBackendName, backend.UnavailableReason()))
	}

	mountpoint, err = mount.FindAvailableMountpoint(mountpoint)
	if err != nil {
		return exitError(ExitMountFailure, err)
	}

	opts := mount.Options{LocalMode: mountLocalMode, AttrTTL: mountAttrTTL}
	vaultID := uuid.NewString()
	handle, err := backend.MountWithOptions(vaultID, vaultPath, password, mountpoint, opts)
	if err != nil {
		return exitError(ExitMountFailure, err)
	}

	store, err := openStateStore()
	if err != nil {
		handle.Unmount()
		return exitError(ExitMountFailure, err)
	}
	rec := mount.MountRecord{
		ID:         vaultID,
		VaultPath:  vaultPath,
		Mountpoint: handle.Mountpoint(),
		Backend:    backend.Name(),
		PID:        os.Getpid(),
		StartedAt:  startTimestamp(),
		IsDaemon:   false,
	}
	if err := store.Insert(rec); err != nil {
		PrintErr("oxcryptfs: recording mount state: %v", err)
	}

	fmt.Printf("mounted %s at %s\n", vaultPath, handle.Mountpoint())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	if err := store.Remove(handle.Mountpoint()); err != nil {
		PrintErr("oxcryptfs: clearing mount state: %v", err)
	}
	if err := handle.Unmount(); err != nil {
		return exitError(ExitUnmountTimeout, err)
	}
	return nil
}

// resolvePassword reads the vault passphrase from OXCRYPT_PASSWORD, or
// prompts on the controlling terminal without echoing input (spec §6
// "OXCRYPT_PASSWORD, if set, used by adapters in lieu of prompting").
func resolvePassword() (string, error) {
	if pw, ok := os.LookupEnv("OXCRYPT_PASSWORD"); ok {
		return pw, nil
	}

	fmt.Print("Vault password: ")
	if term.IsTerminal(int(syscall.Stdin)) {
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func startTimestamp() int64 { return time.Now().Unix() }
