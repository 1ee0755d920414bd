// Package vault implements the Cryptomator on-disk data model and path
// resolver (spec §3, §4.3): DirId, VaultPath, EntryKind, PathEntry, and the
// translation between cleartext paths and their encrypted on-disk storage
// location. Grounded on backend/cryptomator/cryptomator.go (rclone) for the
// storage-path algorithm and on
// original_source/crates/oxcrypt-mount/src/path_mapper.rs for the
// EntryKind/PathEntry shape.
package vault

import (
	"fmt"
	"path"
	"strings"
)

// DirID identifies a directory instance: empty for the vault root,
// otherwise a UUID (spec §3 DirId).
type DirID string

// IsRoot reports whether id is the vault root directory id.
func (id DirID) IsRoot() bool { return id == "" }

// Less provides the lexicographic ordering spec §4.5 requires for
// lock-order tie-breaks.
func (id DirID) Less(other DirID) bool { return string(id) < string(other) }

// VaultPath is the cleartext path as presented at the mount point: a
// forward-slash path with no leading slash; the root is the empty path
// (spec §3 VaultPath).
type VaultPath string

// RootPath is the canonical VaultPath for the vault root.
const RootPath VaultPath = ""

// Join appends a cleartext component to p.
func (p VaultPath) Join(component string) VaultPath {
	if p == RootPath {
		return VaultPath(component)
	}
	return VaultPath(path.Join(string(p), component))
}

// Split returns p's parent VaultPath and its final component.
func (p VaultPath) Split() (parent VaultPath, name string) {
	if p == RootPath {
		return RootPath, ""
	}
	dir, base := path.Split(string(p))
	return VaultPath(strings.TrimSuffix(dir, "/")), base
}

// Components splits p into its cleartext path components.
func (p VaultPath) Components() []string {
	if p == RootPath {
		return nil
	}
	return strings.Split(string(p), "/")
}

// EntryKindTag discriminates the EntryKind tagged union (spec §3
// EntryKind).
type EntryKindTag int

const (
	KindRoot EntryKindTag = iota
	KindDirectory
	KindFile
	KindSymlink
)

// EntryKind is a tagged union over {Root, Directory, File, Symlink} (spec
// §3). Only Root and Directory expose DirID(); only File and Symlink
// expose (ParentDirID, Name()).
type EntryKind struct {
	Tag         EntryKindTag
	dirID       DirID // valid for KindRoot, KindDirectory
	parentDirID DirID // valid for KindFile, KindSymlink
	name        string
}

// RootKind constructs the Root EntryKind.
func RootKind(rootDirID DirID) EntryKind {
	return EntryKind{Tag: KindRoot, dirID: rootDirID}
}

// DirectoryKind constructs a Directory EntryKind.
func DirectoryKind(dirID DirID) EntryKind {
	return EntryKind{Tag: KindDirectory, dirID: dirID}
}

// FileKind constructs a File EntryKind.
func FileKind(parentDirID DirID, name string) EntryKind {
	return EntryKind{Tag: KindFile, parentDirID: parentDirID, name: name}
}

// SymlinkKind constructs a Symlink EntryKind.
func SymlinkKind(parentDirID DirID, name string) EntryKind {
	return EntryKind{Tag: KindSymlink, parentDirID: parentDirID, name: name}
}

// DirID returns the directory id for Root/Directory kinds. Panics for
// File/Symlink — callers must check IsDirectory() first.
func (k EntryKind) DirID() DirID {
	if k.Tag != KindRoot && k.Tag != KindDirectory {
		panic(fmt.Sprintf("vault: DirID() called on non-directory EntryKind %v", k.Tag))
	}
	return k.dirID
}

// ParentDirID returns the parent directory id for File/Symlink kinds.
func (k EntryKind) ParentDirID() DirID {
	if k.Tag != KindFile && k.Tag != KindSymlink {
		panic(fmt.Sprintf("vault: ParentDirID() called on non-leaf EntryKind %v", k.Tag))
	}
	return k.parentDirID
}

// Name returns the leaf name for File/Symlink kinds.
func (k EntryKind) Name() string {
	if k.Tag != KindFile && k.Tag != KindSymlink {
		panic(fmt.Sprintf("vault: Name() called on non-leaf EntryKind %v", k.Tag))
	}
	return k.name
}

func (k EntryKind) IsDirectory() bool { return k.Tag == KindRoot || k.Tag == KindDirectory }
func (k EntryKind) IsFile() bool      { return k.Tag == KindFile }
func (k EntryKind) IsSymlink() bool   { return k.Tag == KindSymlink }

// PathEntry pairs a VaultPath with its EntryKind (spec §3 PathEntry);
// stored per numeric id in a pathtable.Table and mutated only through
// rename (see pathtable.Table.UpdatePath).
type PathEntry struct {
	Path VaultPath
	Kind EntryKind
}

func (e PathEntry) DirID() DirID       { return e.Kind.DirID() }
func (e PathEntry) ParentDirID() DirID { return e.Kind.ParentDirID() }
func (e PathEntry) Name() string       { return e.Kind.Name() }
func (e PathEntry) IsDirectory() bool  { return e.Kind.IsDirectory() }
func (e PathEntry) IsFile() bool       { return e.Kind.IsFile() }
func (e PathEntry) IsSymlink() bool    { return e.Kind.IsSymlink() }
