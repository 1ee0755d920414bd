package vaultops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxcrypt/oxcryptfs/vault"
)

// CreateDirectory mints a new directory named name inside dir (spec §4.6
// create_directory): a fresh UUID dir-id, its storage shard, dirid.c9r
// backfile, and the parent's dir.c9r marker, all under dir's write lock.
func (o *Ops) CreateDirectory(dir vault.DirID, name string) (vault.DirID, error) {
	g := o.Locks.DirectoryWrite(dir)
	defer g.Unlock()

	if _, err := o.Vault.Resolver.ResolveLeaf(dir, name); err == nil {
		return "", fmt.Errorf("vaultops: create directory %s: %w", name, vault.ErrAlreadyExists)
	} else if !errors.Is(err, vault.ErrNotFound) {
		return "", err
	}

	newID := newDirID()
	if err := o.Vault.Resolver.CreateChildDir(dir, name, newID); err != nil {
		return "", err
	}
	return newID, nil
}

// DeleteDirectory removes the subdirectory targetName inside dir, refusing
// if it is not empty (spec §4.6 delete_directory): dir's write lock is
// acquired first, then the target directory's own write lock, so a
// concurrent operation already inside the target cannot race the removal
// of its marker and shard.
func (o *Ops) DeleteDirectory(dir vault.DirID, targetName string) error {
	dirGuard := o.Locks.DirectoryWrite(dir)
	defer dirGuard.Unlock()

	targetID, err := o.Vault.Resolver.ResolveChildDir(dir, targetName)
	if err != nil {
		return err
	}

	targetGuard := o.Locks.DirectoryWrite(targetID)
	defer targetGuard.Unlock()

	entries, err := o.listDir(targetID)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("vaultops: delete directory %s: %w", targetName, vault.ErrNotEmpty)
	}

	targetShard, err := o.Vault.Storage.AbsShardDir(targetID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(targetShard); err != nil {
		return err
	}

	containerRel, _, err := o.Vault.Storage.EncryptedLeafContainer(dir, targetName)
	if err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(o.Vault.Root, containerRel))
}
