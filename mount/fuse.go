// Package mount's FUSE backend wires bazil.org/fuse's Node/Handle model to
// vaultops.Ops: one dirNode/fileNode/symlinkNode per path, numbered through
// a pathtable.Table so the kernel's inode numbers stay stable across
// lookups of the same vault path. Grounded on
// other_examples/9495e355_fokx-lf__pkg-lf-fs.go.go's fsDir/fsFile split
// (Attr/Lookup/ReadDirAll/Mkdir/Remove/Rename/Create/Read/Write/Release)
// and on backend/cryptomator/cryptomator.go for the vault operations each
// method delegates to.
package mount

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/oxcrypt/oxcryptfs/executor"
	"github.com/oxcrypt/oxcryptfs/handletable"
	"github.com/oxcrypt/oxcryptfs/lockmgr"
	"github.com/oxcrypt/oxcryptfs/pathtable"
	"github.com/oxcrypt/oxcryptfs/vault"
	"github.com/oxcrypt/oxcryptfs/vaultops"
)

// fuseRootID and fuseFirstID seed the path table: inode 1 is reserved for
// the mount root, as bazil.org/fuse expects.
const (
	fuseRootID  = 1
	fuseFirstID = 2
)

// RemoteAttrTTL and LocalAttrTTL are this backend's default attribute
// cache lifetimes (spec §4.12 Options.AttrTTL).
const (
	RemoteAttrTTL = 5 * time.Second
	LocalAttrTTL  = 1 * time.Second
)

// FuseBackend mounts vaults through the kernel's FUSE driver (spec §4.12,
// Linux/macOS).
type FuseBackend struct{}

// NewFuseBackend constructs a FuseBackend.
func NewFuseBackend() *FuseBackend { return &FuseBackend{} }

func (b *FuseBackend) Name() string { return "fuse" }

// IsAvailable reports whether /dev/fuse exists, the cheap local signal
// that a FUSE-capable kernel module is loaded.
func (b *FuseBackend) IsAvailable() bool {
	_, err := os.Stat("/dev/fuse")
	return err == nil
}

func (b *FuseBackend) UnavailableReason() string {
	if b.IsAvailable() {
		return ""
	}
	return "/dev/fuse not present; load the fuse kernel module or install macFUSE"
}

func (b *FuseBackend) Mount(vaultID, vaultPath, password, mountpoint string) (*Handle, error) {
	return b.MountWithOptions(vaultID, vaultPath, password, mountpoint, DefaultOptions())
}

func (b *FuseBackend) MountWithOptions(vaultID, vaultPath, password, mountpoint string, opts Options) (*Handle, error) {
	v, err := vault.Open(vaultPath, password)
	if err != nil {
		return nil, fmt.Errorf("mount: open vault at %s: %w", vaultPath, err)
	}

	locks := lockmgr.New()
	exec := executor.New()
	ops := vaultops.NewWithExecutor(v, locks, exec)
	attrTTL := opts.AttrTTLOrDefault(RemoteAttrTTL, LocalAttrTTL)

	fsys := &fuseFS{
		ops:     ops,
		vault:   v,
		paths:   pathtable.WithRoot[vault.PathEntry](fuseRootID, fuseFirstID, vault.PathEntry{Path: vault.RootPath, Kind: vault.RootKind("")}),
		handles: handletable.NewAutoTable[*fileHandle](),
		stats:   NewVaultStats(),
		locks:   locks.Metrics(),
		attrTTL: attrTTL,
		uid:     uint32(os.Getuid()),
		gid:     uint32(os.Getgid()),
	}

	conn, err := fuse.Mount(
		mountpoint,
		fuse.FSName("oxcryptfs"),
		fuse.Subtype("oxcryptfs"),
		fuse.VolumeName(vaultID),
	)
	if err != nil {
		exec.Shutdown()
		v.Close()
		return nil, fmt.Errorf("mount: fuse.Mount %s: %w", mountpoint, err)
	}

	session := &fuseSession{conn: conn, mountpoint: mountpoint, vault: v, exec: exec, done: make(chan error, 1)}
	go session.serve(fsys)

	select {
	case <-conn.Ready:
	case <-time.After(ReadinessTimeout):
		session.forceUnmount()
		return nil, fmt.Errorf("mount: %s did not become ready within %s", mountpoint, ReadinessTimeout)
	}
	if conn.MountError != nil {
		session.forceUnmount()
		return nil, fmt.Errorf("mount: %s: %w", mountpoint, conn.MountError)
	}

	h := newHandle(mountpoint, b.Name(), vaultID, session)
	h.stats = fsys.stats
	h.locks = fsys.locks
	return h, nil
}

// fuseSession adapts an open *fuse.Conn and its Serve goroutine to the
// unmounter interface Handle drives.
type fuseSession struct {
	conn       *fuse.Conn
	mountpoint string
	vault      *vault.Vault
	exec       *executor.Executor
	done       chan error
}

func (s *fuseSession) serve(fsys fusefs.FS) {
	err := fusefs.Serve(s.conn, fsys)
	s.conn.Close()
	s.exec.Shutdown()
	s.exec.Wait()
	s.vault.Close()
	s.done <- err
}

func (s *fuseSession) unmount() error {
	if err := fuse.Unmount(s.mountpoint); err != nil {
		return err
	}
	return <-s.done
}

func (s *fuseSession) forceUnmount() error {
	return platformForceUnmount(s.mountpoint)
}

// fuseFS is the bazil.org/fuse filesystem root; one exists per mounted
// vault.
type fuseFS struct {
	ops     *vaultops.Ops
	vault   *vault.Vault
	paths   *pathtable.Table[vault.PathEntry]
	handles *handletable.AutoTable[*fileHandle]
	stats   *VaultStats
	locks   *LockMetrics
	attrTTL time.Duration
	uid     uint32
	gid     uint32
}

func (fsys *fuseFS) Root() (fusefs.Node, error) {
	return &dirNode{node{fsys, fsys.paths.RootID()}}, nil
}

// node is the shared identity every FUSE node carries: its filesystem and
// its numeric id in fsys.paths.
type node struct {
	fsys *fuseFS
	id   uint64
}

func (n node) entry() (vault.PathEntry, error) {
	e, ok := n.fsys.paths.Get(n.id)
	if !ok {
		return vault.PathEntry{}, fuse.ESTALE
	}
	return e, nil
}

func (n node) childNode(childPath vault.VaultPath, kind vault.EntryKind) fusefs.Node {
	id := n.fsys.paths.GetOrInsertWith(childPath, func() vault.PathEntry {
		return vault.PathEntry{Path: childPath, Kind: kind}
	})
	switch {
	case kind.IsDirectory():
		return &dirNode{node{n.fsys, id}}
	case kind.IsSymlink():
		return &symlinkNode{node{n.fsys, id}}
	default:
		return &fileNode{node{n.fsys, id}}
	}
}

// translateErr maps vault/vaultops sentinel errors to the fuse.Errno the
// kernel expects; everything else surfaces as EIO (spec §7 propagation:
// unknown errors never leak raw Go error text to the kernel boundary).
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vault.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, vault.ErrAlreadyExists):
		return fuse.EEXIST
	case errors.Is(err, vault.ErrNotEmpty):
		return fuse.Errno(syscall.ENOTEMPTY)
	case errors.Is(err, vault.ErrInvalid):
		return fuse.Errno(syscall.EINVAL)
	case errors.Is(err, vault.ErrNotADirectory):
		return fuse.Errno(syscall.ENOTDIR)
	case errors.Is(err, vault.ErrNotSupported):
		return fuse.Errno(syscall.ENOTSUP)
	case errors.Is(err, vault.ErrTimeout):
		return fuse.Errno(syscall.ETIMEDOUT)
	case errors.Is(err, vault.ErrQueueFull):
		return fuse.Errno(syscall.EAGAIN)
	default:
		return fuse.EIO
	}
}

// --- directory node ---

type dirNode struct{ node }

var (
	_ fusefs.Node               = (*dirNode)(nil)
	_ fusefs.NodeStringLookuper = (*dirNode)(nil)
	_ fusefs.HandleReadDirAller = (*dirNode)(nil)
	_ fusefs.NodeMkdirer        = (*dirNode)(nil)
	_ fusefs.NodeRemover        = (*dirNode)(nil)
	_ fusefs.NodeRenamer        = (*dirNode)(nil)
	_ fusefs.NodeCreater        = (*dirNode)(nil)
	_ fusefs.NodeSymlinker      = (*dirNode)(nil)
)

func (n *dirNode) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Valid = n.fsys.attrTTL
	a.Inode = n.id
	a.Mode = os.ModeDir | 0o755
	a.Uid = n.fsys.uid
	a.Gid = n.fsys.gid
	a.Nlink = 1
	return nil
}

func (n *dirNode) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	entry, err := n.entry()
	if err != nil {
		return nil, err
	}
	dirID := entry.Kind.DirID()
	childPath := entry.Path.Join(name)

	if childID, err := n.fsys.vault.Resolver.ResolveChildDir(dirID, name); err == nil {
		return n.childNode(childPath, vault.DirectoryKind(childID)), nil
	} else if !errors.Is(err, vault.ErrNotFound) {
		return nil, translateErr(err)
	}

	leaf, err := n.fsys.vault.Resolver.ResolveLeaf(dirID, name)
	if err != nil {
		return nil, translateErr(err)
	}
	if leaf.IsSymlink {
		return n.childNode(childPath, vault.SymlinkKind(dirID, name)), nil
	}
	return n.childNode(childPath, vault.FileKind(dirID, name)), nil
}

func (n *dirNode) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entry, err := n.entry()
	if err != nil {
		return nil, err
	}
	entries, err := n.fsys.ops.ListAll(entry.Kind.DirID())
	if err != nil {
		return nil, translateErr(err)
	}

	dirID := entry.Kind.DirID()
	out := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		childPath := entry.Path.Join(e.Name)
		var inode uint64
		switch {
		case e.IsDir:
			childID, err := n.fsys.vault.Resolver.ResolveChildDir(dirID, e.Name)
			if err != nil {
				continue
			}
			inode = n.fsys.paths.GetOrInsertWith(childPath, func() vault.PathEntry {
				return vault.PathEntry{Path: childPath, Kind: vault.DirectoryKind(childID)}
			})
			out = append(out, fuse.Dirent{Inode: inode, Type: fuse.DT_Dir, Name: e.Name})
		case e.IsSymlink:
			inode = n.fsys.paths.GetOrInsertWith(childPath, func() vault.PathEntry {
				return vault.PathEntry{Path: childPath, Kind: vault.SymlinkKind(dirID, e.Name)}
			})
			out = append(out, fuse.Dirent{Inode: inode, Type: fuse.DT_Link, Name: e.Name})
		default:
			inode = n.fsys.paths.GetOrInsertWith(childPath, func() vault.PathEntry {
				return vault.PathEntry{Path: childPath, Kind: vault.FileKind(dirID, e.Name)}
			})
			out = append(out, fuse.Dirent{Inode: inode, Type: fuse.DT_File, Name: e.Name})
		}
	}
	return out, nil
}

func (n *dirNode) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	entry, err := n.entry()
	if err != nil {
		return nil, err
	}
	childID, err := n.fsys.ops.CreateDirectory(entry.Kind.DirID(), req.Name)
	if err != nil {
		return nil, translateErr(err)
	}
	return n.childNode(entry.Path.Join(req.Name), vault.DirectoryKind(childID)), nil
}

func (n *dirNode) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	entry, err := n.entry()
	if err != nil {
		return err
	}
	dirID := entry.Kind.DirID()
	childPath := entry.Path.Join(req.Name)
	if req.Dir {
		err = n.fsys.ops.DeleteDirectory(dirID, req.Name)
	} else {
		err = n.fsys.ops.DeleteFile(dirID, req.Name)
	}
	if err != nil {
		return translateErr(err)
	}
	n.fsys.paths.InvalidatePath(childPath)
	return nil
}

func (n *dirNode) Rename(ctx context.Context, req *fuse.RenameRequest, newDirNode fusefs.Node) error {
	entry, err := n.entry()
	if err != nil {
		return err
	}
	newDir, ok := newDirNode.(*dirNode)
	if !ok {
		return fuse.EIO
	}
	newEntry, err := newDir.entry()
	if err != nil {
		return err
	}

	srcDirID, dstDirID := entry.Kind.DirID(), newEntry.Kind.DirID()
	oldPath := entry.Path.Join(req.OldName)
	newPath := newEntry.Path.Join(req.NewName)

	if srcDirID == dstDirID {
		err = n.fsys.ops.RenameFile(srcDirID, req.OldName, req.NewName)
	} else {
		err = n.fsys.ops.MoveFile(srcDirID, req.OldName, dstDirID)
		if err == nil && req.NewName != req.OldName {
			err = n.fsys.ops.RenameFile(dstDirID, req.OldName, req.NewName)
		}
	}
	if err != nil {
		return translateErr(err)
	}

	if id, ok := n.fsys.paths.GetID(oldPath); ok {
		n.fsys.paths.UpdatePath(id, oldPath, newPath, func(e *vault.PathEntry, p vault.VaultPath) {
			e.Path = p
			switch {
			case e.Kind.IsDirectory():
				e.Kind = vault.DirectoryKind(e.Kind.DirID())
			case e.Kind.IsSymlink():
				e.Kind = vault.SymlinkKind(dstDirID, req.NewName)
			default:
				e.Kind = vault.FileKind(dstDirID, req.NewName)
			}
		})
	}
	return nil
}

func (n *dirNode) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	entry, err := n.entry()
	if err != nil {
		return nil, nil, err
	}
	dirID := entry.Kind.DirID()
	if err := n.fsys.ops.WriteFile(dirID, req.Name, nil); err != nil {
		return nil, nil, translateErr(err)
	}
	fn := n.childNode(entry.Path.Join(req.Name), vault.FileKind(dirID, req.Name)).(*fileNode)
	h := &fileHandle{ops: n.fsys.ops, stats: n.fsys.stats, handles: n.fsys.handles, dirID: dirID, name: req.Name}
	h.id = n.fsys.handles.InsertAuto(h)
	n.fsys.stats.FilesOpened.Add(1)
	return fn, h, nil
}

func (n *dirNode) Symlink(ctx context.Context, req *fuse.SymlinkRequest) (fusefs.Node, error) {
	entry, err := n.entry()
	if err != nil {
		return nil, err
	}
	dirID := entry.Kind.DirID()
	if err := n.fsys.ops.CreateSymlink(dirID, req.NewName, req.Target); err != nil {
		return nil, translateErr(err)
	}
	return n.childNode(entry.Path.Join(req.NewName), vault.SymlinkKind(dirID, req.NewName)), nil
}

// --- file node ---

type fileNode struct{ node }

var (
	_ fusefs.Node          = (*fileNode)(nil)
	_ fusefs.NodeOpener    = (*fileNode)(nil)
	_ fusefs.NodeSetattrer = (*fileNode)(nil)
)

func (n *fileNode) Attr(ctx context.Context, a *fuse.Attr) error {
	entry, err := n.entry()
	if err != nil {
		return err
	}
	st, err := n.fsys.ops.StatFile(entry.Kind.ParentDirID(), entry.Kind.Name())
	if err != nil {
		return translateErr(err)
	}
	a.Valid = n.fsys.attrTTL
	a.Inode = n.id
	a.Mode = 0o644
	a.Size = uint64(st.Size)
	a.Uid = n.fsys.uid
	a.Gid = n.fsys.gid
	a.Nlink = 1
	return nil
}

func (n *fileNode) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	entry, err := n.entry()
	if err != nil {
		return nil, err
	}
	dirID, name := entry.Kind.ParentDirID(), entry.Kind.Name()

	data, err := n.fsys.ops.ReadFile(dirID, name)
	if err != nil {
		return nil, translateErr(err)
	}
	h := &fileHandle{ops: n.fsys.ops, stats: n.fsys.stats, handles: n.fsys.handles, dirID: dirID, name: name, data: data}
	h.id = n.fsys.handles.InsertAuto(h)
	n.fsys.stats.FilesOpened.Add(1)
	return h, nil
}

func (n *fileNode) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid&fuse.SetattrSize == 0 {
		return nil
	}
	entry, err := n.entry()
	if err != nil {
		return err
	}
	dirID, name := entry.Kind.ParentDirID(), entry.Kind.Name()

	data, err := n.fsys.ops.ReadFile(dirID, name)
	if err != nil && !errors.Is(err, vault.ErrNotFound) {
		return translateErr(err)
	}
	size := int(req.Size)
	switch {
	case size <= len(data):
		data = data[:size]
	default:
		grown := make([]byte, size)
		copy(grown, data)
		data = grown
	}
	if err := n.fsys.ops.WriteFile(dirID, name, data); err != nil {
		return translateErr(err)
	}
	resp.Attr.Size = req.Size
	resp.Attr.Inode = n.id
	resp.Attr.Valid = n.fsys.attrTTL
	return nil
}

// --- symlink node ---

type symlinkNode struct{ node }

var (
	_ fusefs.Node           = (*symlinkNode)(nil)
	_ fusefs.NodeReadlinker = (*symlinkNode)(nil)
)

func (n *symlinkNode) Attr(ctx context.Context, a *fuse.Attr) error {
	entry, err := n.entry()
	if err != nil {
		return err
	}
	st, err := n.fsys.ops.StatFile(entry.Kind.ParentDirID(), entry.Kind.Name())
	if err != nil {
		return translateErr(err)
	}
	a.Valid = n.fsys.attrTTL
	a.Inode = n.id
	a.Mode = os.ModeSymlink | 0o777
	a.Size = uint64(st.Size)
	a.Uid = n.fsys.uid
	a.Gid = n.fsys.gid
	a.Nlink = 1
	return nil
}

func (n *symlinkNode) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	entry, err := n.entry()
	if err != nil {
		return "", err
	}
	target, err := n.fsys.ops.ReadSymlink(entry.Kind.ParentDirID(), entry.Kind.Name())
	if err != nil {
		return "", translateErr(err)
	}
	return target, nil
}

// --- file handle ---

// fileHandle buffers one open file's decrypted content in memory and
// writes it back whole on Flush/Release. Like streamio.Writer.WriteAt, it
// accepts only writes that continue at the current end of the buffer; any
// other offset is rejected.
type fileHandle struct {
	ops     *vaultops.Ops
	stats   *VaultStats
	handles *handletable.AutoTable[*fileHandle]
	id      uint64
	dirID   vault.DirID
	name    string

	mu    sync.Mutex
	data  []byte
	dirty bool
}

var (
	_ fusefs.Handle         = (*fileHandle)(nil)
	_ fusefs.HandleReader   = (*fileHandle)(nil)
	_ fusefs.HandleWriter   = (*fileHandle)(nil)
	_ fusefs.HandleFlusher  = (*fileHandle)(nil)
	_ fusefs.HandleReleaser = (*fileHandle)(nil)
)

func (h *fileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if req.Offset > int64(len(h.data)) {
		resp.Data = nil
		return nil
	}
	end := req.Offset + int64(req.Size)
	if end > int64(len(h.data)) {
		end = int64(len(h.data))
	}
	resp.Data = h.data[req.Offset:end]
	h.stats.BytesRead.Add(uint64(len(resp.Data)))
	return nil
}

func (h *fileHandle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if req.Offset != int64(len(h.data)) {
		return fuse.Errno(syscall.EINVAL)
	}
	h.data = append(h.data, req.Data...)
	h.dirty = true
	resp.Size = len(req.Data)
	h.stats.BytesWritten.Add(uint64(len(req.Data)))
	return nil
}

func (h *fileHandle) flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirty {
		return nil
	}
	if err := h.ops.WriteFile(h.dirID, h.name, h.data); err != nil {
		h.stats.Errors.Add(1)
		return translateErr(err)
	}
	h.dirty = false
	return nil
}

func (h *fileHandle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return h.flush()
}

func (h *fileHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	err := h.flush()
	h.handles.Remove(h.id)
	return err
}
