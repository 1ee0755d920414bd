package vaultops

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxcrypt/oxcryptfs/lockmgr"
	"github.com/oxcrypt/oxcryptfs/streamio"
	"github.com/oxcrypt/oxcryptfs/vault"
)

// FileReader is a streamio.Reader paired with the dir/file read-lock
// guards held for its lifetime (spec §4.6 open_file_reader: dir-read,
// file-read). Callers must Close it to release both the file handle and
// the locks.
type FileReader struct {
	*streamio.Reader
	dirGuard  *lockmgr.Guard
	fileGuard *lockmgr.Guard
}

// OpenFileReader opens name inside dir for random-access decrypted reads,
// holding dir's and name's read locks until the Reader is closed (spec
// §4.6 open_file_reader).
func (o *Ops) OpenFileReader(dir vault.DirID, name string) (*FileReader, error) {
	dirGuard := o.Locks.DirectoryRead(dir)
	fileGuard := o.Locks.FileRead(dir, name)

	leaf, err := o.Vault.Resolver.ResolveLeaf(dir, name)
	if err != nil {
		fileGuard.Unlock()
		dirGuard.Unlock()
		return nil, err
	}
	if leaf.IsSymlink {
		fileGuard.Unlock()
		dirGuard.Unlock()
		return nil, fmt.Errorf("vaultops: open %s: %w", name, vault.ErrInvalid)
	}

	reader, err := streamio.OpenReader(leaf.ContentPath(), o.Vault.Storage.Cryptor)
	if err != nil {
		fileGuard.Unlock()
		dirGuard.Unlock()
		return nil, err
	}

	return &FileReader{Reader: reader, dirGuard: dirGuard, fileGuard: fileGuard}, nil
}

// Close closes the underlying file handle and releases both locks.
func (r *FileReader) Close() error {
	err := r.Reader.Close()
	r.fileGuard.Unlock()
	r.dirGuard.Unlock()
	return err
}

// ReadFile returns the fully decrypted contents of name inside dir (spec
// §4.6 read_file), dispatched through o.Executor when one is configured
// (spec §5 suspension point: "I/O syscalls inside the user future").
func (o *Ops) ReadFile(dir vault.DirID, name string) ([]byte, error) {
	v, err := o.runBlocking(func() (any, error) {
		r, err := o.OpenFileReader(dir, name)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.ReadRange(0, int(r.Size()))
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// WriteFile creates or replaces name inside dir with data, via a
// temp-file-then-rename (spec §4.6 write_file, create-or-replace
// protocol): write header+content to a ".tmp-<pid>" sibling, fsync
// best-effort, atomically rename over the target (into contents.c9r if the
// target is a .c9s container), fsync the parent directory where supported.
func (o *Ops) WriteFile(dir vault.DirID, name string, data []byte) error {
	_, err := o.runBlocking(func() (any, error) {
		return nil, o.writeFile(dir, name, data)
	})
	return err
}

func (o *Ops) writeFile(dir vault.DirID, name string, data []byte) error {
	dirGuard := o.Locks.DirectoryWrite(dir)
	defer dirGuard.Unlock()
	fileGuard := o.Locks.FileWrite(dir, name)
	defer fileGuard.Unlock()

	containerRel, isLong, err := o.Vault.Storage.EncryptedLeafContainer(dir, name)
	if err != nil {
		return err
	}
	containerAbs := filepath.Join(o.Vault.Root, containerRel)

	var targetPath, parentDir string
	if isLong {
		if err := o.createLongNameLeaf(dir, name, containerAbs); err != nil {
			return err
		}
		targetPath = filepath.Join(containerAbs, vault.ContentsFile)
		parentDir = containerAbs
	} else {
		targetPath = containerAbs
		parentDir = filepath.Dir(containerAbs)
		if err := os.MkdirAll(parentDir, 0o700); err != nil {
			return err
		}
	}

	tmp := targetPath + fmt.Sprintf(".tmp-%d", os.Getpid())
	w, err := streamio.CreateWriter(tmp, o.Vault.Storage.Cryptor)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, targetPath); err != nil {
		os.Remove(tmp)
		return err
	}

	if pf, err := os.Open(parentDir); err == nil {
		pf.Sync()
		pf.Close()
	}
	return nil
}

func (o *Ops) createLongNameLeaf(dir vault.DirID, name, containerAbs string) error {
	if _, err := os.Stat(containerAbs); err == nil {
		return nil
	}
	if err := os.MkdirAll(containerAbs, 0o700); err != nil {
		return err
	}
	enc, err := o.Vault.Storage.Cryptor.EncryptFilename(name, string(dir))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(containerAbs, vault.LongNameFile), []byte(enc+vault.ShortNameSuffix), 0o600)
}

// CreateSymlink creates a new symlink leaf named name inside dir pointing
// at target. Symlink containers are always directories holding
// symlink.c9r, the same shape a directory leaf uses for dir.c9r,
// regardless of whether name crosses the long-name threshold.
func (o *Ops) CreateSymlink(dir vault.DirID, name, target string) error {
	dirGuard := o.Locks.DirectoryWrite(dir)
	defer dirGuard.Unlock()
	fileGuard := o.Locks.FileWrite(dir, name)
	defer fileGuard.Unlock()

	if _, err := o.Vault.Resolver.ResolveLeaf(dir, name); err == nil {
		return fmt.Errorf("vaultops: create symlink %s: %w", name, vault.ErrAlreadyExists)
	}

	containerRel, isLong, err := o.Vault.Storage.EncryptedLeafContainer(dir, name)
	if err != nil {
		return err
	}
	containerAbs := filepath.Join(o.Vault.Root, containerRel)

	if err := os.MkdirAll(containerAbs, 0o700); err != nil {
		return err
	}
	if isLong {
		enc, err := o.Vault.Storage.Cryptor.EncryptFilename(name, string(dir))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(containerAbs, vault.LongNameFile), []byte(enc+vault.ShortNameSuffix), 0o600); err != nil {
			return err
		}
	}

	w, err := streamio.CreateWriter(filepath.Join(containerAbs, vault.SymlinkFile), o.Vault.Storage.Cryptor)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(target)); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// FileStat describes a leaf's metadata as needed for FUSE Attr/Getattr,
// without the cost of opening a full streamio.Reader.
type FileStat struct {
	Size      int64
	IsSymlink bool
}

// StatFile resolves name inside dir and reports its decrypted size and
// leaf kind, holding dir's and name's read locks only for the lookup.
func (o *Ops) StatFile(dir vault.DirID, name string) (FileStat, error) {
	dirGuard := o.Locks.DirectoryRead(dir)
	defer dirGuard.Unlock()
	fileGuard := o.Locks.FileRead(dir, name)
	defer fileGuard.Unlock()

	leaf, err := o.Vault.Resolver.ResolveLeaf(dir, name)
	if err != nil {
		return FileStat{}, err
	}
	if leaf.IsSymlink {
		info, err := os.Stat(leaf.ContentPath())
		if err != nil {
			return FileStat{}, err
		}
		size := o.Vault.Storage.Cryptor.DecryptedFileSize(info.Size())
		return FileStat{Size: size, IsSymlink: true}, nil
	}

	info, err := os.Stat(leaf.ContentPath())
	if err != nil {
		return FileStat{}, err
	}
	size := o.Vault.Storage.Cryptor.DecryptedFileSize(info.Size())
	return FileStat{Size: size}, nil
}

// ReadSymlink returns the plaintext target of a symlink leaf. symlink.c9r
// holds the target path through the same header+chunk encryption as
// regular file content (spec §3 symlink container).
func (o *Ops) ReadSymlink(dir vault.DirID, name string) (string, error) {
	dirGuard := o.Locks.DirectoryRead(dir)
	defer dirGuard.Unlock()
	fileGuard := o.Locks.FileRead(dir, name)
	defer fileGuard.Unlock()

	leaf, err := o.Vault.Resolver.ResolveLeaf(dir, name)
	if err != nil {
		return "", err
	}
	if !leaf.IsSymlink {
		return "", fmt.Errorf("vaultops: readlink %s: %w", name, vault.ErrInvalid)
	}

	reader, err := streamio.OpenReader(leaf.ContentPath(), o.Vault.Storage.Cryptor)
	if err != nil {
		return "", err
	}
	defer reader.Close()
	target, err := reader.ReadRange(0, int(reader.Size()))
	if err != nil {
		return "", err
	}
	return string(target), nil
}

// DeleteFile removes name's on-disk container inside dir (spec §4.6
// delete_file).
func (o *Ops) DeleteFile(dir vault.DirID, name string) error {
	dirGuard := o.Locks.DirectoryWrite(dir)
	defer dirGuard.Unlock()
	fileGuard := o.Locks.FileWrite(dir, name)
	defer fileGuard.Unlock()

	leaf, err := o.Vault.Resolver.ResolveLeaf(dir, name)
	if err != nil {
		return err
	}
	if leaf.IsLong {
		return os.RemoveAll(leaf.ContainerAbsPath)
	}
	return os.Remove(leaf.ContainerAbsPath)
}
