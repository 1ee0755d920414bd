package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Resolver translates cleartext VaultPaths to on-disk locations (spec
// §4.3). It is stateless beyond the Storage it wraps; callers hold the
// lockmgr guards appropriate to the operation before calling in.
type Resolver struct {
	storage *Storage
}

// NewResolver wraps storage in a path Resolver.
func NewResolver(storage *Storage) *Resolver {
	return &Resolver{storage: storage}
}

// ResolveDir walks path's components from the vault root, returning the
// DirID of the directory at path (spec §4.3 resolution algorithm). Root
// resolves to the empty DirID.
func (r *Resolver) ResolveDir(p VaultPath) (DirID, error) {
	dirID := DirID("")
	for _, component := range p.Components() {
		next, err := r.findChildDir(dirID, component)
		if err != nil {
			return "", err
		}
		dirID = next
	}
	return dirID, nil
}

// ResolveChildDir looks up the directory id of a single child "name"
// directly inside parent, without walking a full path (spec §4.6
// delete_directory/move_file need the target's own DirID to lock it).
func (r *Resolver) ResolveChildDir(parent DirID, name string) (DirID, error) {
	return r.findChildDir(parent, name)
}

// findChildDir looks up the directory id of child "name" inside parent
// dirID by reading <container>/dir.c9r (spec §4.3 step 2, grounded on
// backend/cryptomator.go FindLeaf).
func (r *Resolver) findChildDir(parent DirID, name string) (DirID, error) {
	containerRel, _, err := r.storage.EncryptedLeafContainer(parent, name)
	if err != nil {
		return "", err
	}
	markerPath := filepath.Join(r.storage.Root, containerRel, DirMarkerName)

	data, err := os.ReadFile(markerPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", err
	}
	return DirID(data), nil
}

// LeafInfo describes the resolved on-disk container for a file or symlink
// leaf.
type LeafInfo struct {
	ContainerAbsPath string // absolute path of the .c9r file or .c9s directory
	IsLong           bool
	IsSymlink        bool
}

// ResolveLeaf resolves a file/symlink leaf "name" inside directory dirID to
// its on-disk container (spec §4.3 "File path → file location").
func (r *Resolver) ResolveLeaf(dirID DirID, name string) (LeafInfo, error) {
	containerRel, isLong, err := r.storage.EncryptedLeafContainer(dirID, name)
	if err != nil {
		return LeafInfo{}, err
	}
	abs := filepath.Join(r.storage.Root, containerRel)

	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return LeafInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return LeafInfo{}, err
	}

	if isLong {
		if !info.IsDir() {
			return LeafInfo{}, fmt.Errorf("vault: corrupt long-name container %s is not a directory", abs)
		}
		_, symErr := os.Stat(filepath.Join(abs, SymlinkFile))
		return LeafInfo{ContainerAbsPath: abs, IsLong: true, IsSymlink: symErr == nil}, nil
	}
	if info.IsDir() {
		return LeafInfo{}, fmt.Errorf("vault: corrupt short-name container %s is a directory", abs)
	}
	return LeafInfo{ContainerAbsPath: abs, IsLong: false}, nil
}

// ContentPath returns the absolute path of the file holding a leaf's
// content bytes: the .c9r file itself, or contents.c9r/symlink.c9r inside a
// .c9s container.
func (info LeafInfo) ContentPath() string {
	if !info.IsLong {
		return info.ContainerAbsPath
	}
	if info.IsSymlink {
		return filepath.Join(info.ContainerAbsPath, SymlinkFile)
	}
	return filepath.Join(info.ContainerAbsPath, ContentsFile)
}

// CreateRoot ensures the vault root's storage shard and dirid.c9r backfile
// exist (called once at vault creation, spec §4.6 vault bootstrap).
func (r *Resolver) CreateRoot() error {
	shard, err := r.storage.AbsShardDir("")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(shard, 0o700); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(shard, DirIDBackfile)); errors.Is(err, os.ErrNotExist) {
		return r.storage.WriteDirIDBackfile("")
	}
	return nil
}

// CreateChildDir mints a new directory under parent named name, writing
// both the parent's plaintext dir.c9r pointer and the new directory's
// encrypted dirid.c9r backfile (spec §4.6 create_directory, grounded on
// backend/cryptomator.go CreateDir).
func (r *Resolver) CreateChildDir(parent DirID, name string, newID DirID) error {
	containerRel, isLong, err := r.storage.EncryptedLeafContainer(parent, name)
	if err != nil {
		return err
	}
	containerAbs := filepath.Join(r.storage.Root, containerRel)

	if isLong {
		if err := os.MkdirAll(containerAbs, 0o700); err != nil {
			return err
		}
		enc, encErr := r.storage.Cryptor.EncryptFilename(name, string(parent))
		if encErr != nil {
			return encErr
		}
		if err := os.WriteFile(filepath.Join(containerAbs, LongNameFile), []byte(enc+ShortNameSuffix), 0o600); err != nil {
			return err
		}
	} else {
		if err := os.MkdirAll(containerAbs, 0o700); err != nil {
			return err
		}
	}

	if err := os.WriteFile(filepath.Join(containerAbs, DirMarkerName), []byte(newID), 0o600); err != nil {
		return err
	}

	newShard, err := r.storage.AbsShardDir(newID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(newShard, 0o700); err != nil {
		return err
	}
	return r.storage.WriteDirIDBackfile(newID)
}
