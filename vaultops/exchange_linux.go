package vaultops

import "golang.org/x/sys/unix"

// exchangePaths atomically swaps a and b using renameat2(RENAME_EXCHANGE)
// (spec §4.6 exchange, Linux).
func exchangePaths(a, b string) error {
	return unix.Renameat2(unix.AT_FDCWD, a, unix.AT_FDCWD, b, unix.RENAME_EXCHANGE)
}
