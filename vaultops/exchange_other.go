//go:build !linux

package vaultops

import "github.com/oxcrypt/oxcryptfs/vault"

// exchangePaths has no atomic swap primitive outside Linux's
// renameat2(RENAME_EXCHANGE); spec §9 is explicit that callers must see
// this as vault.ErrNotSupported rather than a silently degraded,
// non-atomic two-rename emulation.
func exchangePaths(a, b string) error {
	return vault.ErrNotSupported
}
