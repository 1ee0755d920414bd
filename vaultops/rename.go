package vaultops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxcrypt/oxcryptfs/lockmgr"
	"github.com/oxcrypt/oxcryptfs/vault"
)

// RenameFile renames oldName to newName within dir, re-encrypting the name
// and moving the storage container (possibly switching between the short
// .c9r and long .c9s forms if the new encrypted name crosses the
// shortening threshold) (spec §4.6 rename_file).
func (o *Ops) RenameFile(dir vault.DirID, oldName, newName string) error {
	dirGuard := o.Locks.DirectoryWrite(dir)
	defer dirGuard.Unlock()
	fileGuards := o.Locks.LockFilesWriteOrdered(dir, []string{oldName, newName})
	defer unlockAll(fileGuards)

	if oldName == newName {
		return nil
	}

	oldRel, _, err := o.Vault.Storage.EncryptedLeafContainer(dir, oldName)
	if err != nil {
		return err
	}
	oldAbs := filepath.Join(o.Vault.Root, oldRel)
	if _, err := os.Stat(oldAbs); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("vaultops: rename %s: %w", oldName, vault.ErrNotFound)
	}

	newRel, newIsLong, err := o.Vault.Storage.EncryptedLeafContainer(dir, newName)
	if err != nil {
		return err
	}
	newAbs := filepath.Join(o.Vault.Root, newRel)
	if _, err := os.Stat(newAbs); err == nil {
		return fmt.Errorf("vaultops: rename %s to %s: %w", oldName, newName, vault.ErrAlreadyExists)
	}

	if err := os.MkdirAll(filepath.Dir(newAbs), 0o700); err != nil {
		return err
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return err
	}
	if newIsLong {
		enc, err := o.Vault.Storage.Cryptor.EncryptFilename(newName, string(dir))
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(newAbs, vault.LongNameFile), []byte(enc+vault.ShortNameSuffix), 0o600)
	}
	return nil
}

// MoveFile moves name from srcDir into dstDir, re-encrypting it under
// dstDir's dir-id (spec §4.6 move_file): dirs-write-ordered([srcDir,
// dstDir]) then srcDir's file-write lock on name.
func (o *Ops) MoveFile(srcDir vault.DirID, name string, dstDir vault.DirID) error {
	dirGuards := o.Locks.LockDirectoriesWriteOrdered([]vault.DirID{srcDir, dstDir})
	defer unlockDirs(dirGuards)
	fileGuard := o.Locks.FileWrite(srcDir, name)
	defer fileGuard.Unlock()

	srcRel, _, err := o.Vault.Storage.EncryptedLeafContainer(srcDir, name)
	if err != nil {
		return err
	}
	srcAbs := filepath.Join(o.Vault.Root, srcRel)
	if _, err := os.Stat(srcAbs); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("vaultops: move %s: %w", name, vault.ErrNotFound)
	}

	dstRel, dstIsLong, err := o.Vault.Storage.EncryptedLeafContainer(dstDir, name)
	if err != nil {
		return err
	}
	dstAbs := filepath.Join(o.Vault.Root, dstRel)
	if _, err := os.Stat(dstAbs); err == nil {
		return fmt.Errorf("vaultops: move %s: %w", name, vault.ErrAlreadyExists)
	}
	if err := os.MkdirAll(filepath.Dir(dstAbs), 0o700); err != nil {
		return err
	}

	if err := os.Rename(srcAbs, dstAbs); err != nil {
		return err
	}
	if dstIsLong {
		enc, err := o.Vault.Storage.Cryptor.EncryptFilename(name, string(dstDir))
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dstAbs, vault.LongNameFile), []byte(enc+vault.ShortNameSuffix), 0o600)
	}
	return nil
}

// Exchange atomically swaps the storage entries of a and b within dir
// (spec §4.6 exchange). The platform-specific swap itself is in
// exchange_linux.go (true RENAME_EXCHANGE); exchange_other.go refuses with
// vault.ErrNotSupported on every other platform rather than emulate the
// swap non-atomically (spec §9).
func (o *Ops) Exchange(dir vault.DirID, a, b string) error {
	dirGuard := o.Locks.DirectoryWrite(dir)
	defer dirGuard.Unlock()
	fileGuards := o.Locks.LockFilesWriteOrdered(dir, []string{a, b})
	defer unlockAll(fileGuards)

	aRel, _, err := o.Vault.Storage.EncryptedLeafContainer(dir, a)
	if err != nil {
		return err
	}
	bRel, _, err := o.Vault.Storage.EncryptedLeafContainer(dir, b)
	if err != nil {
		return err
	}
	aAbs := filepath.Join(o.Vault.Root, aRel)
	bAbs := filepath.Join(o.Vault.Root, bRel)

	if err := exchangePaths(aAbs, bAbs); err != nil {
		return fmt.Errorf("vaultops: exchange %s/%s: %w", a, b, err)
	}
	return nil
}

func unlockAll(guards []lockmgr.OrderedFileGuard) {
	for _, g := range guards {
		g.Guard.Unlock()
	}
}

func unlockDirs(guards []lockmgr.OrderedDirGuard) {
	for _, g := range guards {
		g.Guard.Unlock()
	}
}
