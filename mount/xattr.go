package mount

import (
	"bytes"
	"context"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"github.com/pkg/xattr"
)

// Extended attributes pass through to the real attributes of the leaf's
// encrypted container file on disk (spec §6 local_mode option): Cryptomator
// vaults have no attribute-encryption scheme of their own, so xattrs set
// through the mount land, unencrypted, directly on the ciphertext file a
// host backup tool or Finder/Explorer integration already sees. Best
// effort: a filesystem or platform without xattr support degrades to
// ENOTSUP rather than failing the mount.
var (
	_ fusefs.NodeGetxattrer    = (*fileNode)(nil)
	_ fusefs.NodeListxattrer   = (*fileNode)(nil)
	_ fusefs.NodeSetxattrer    = (*fileNode)(nil)
	_ fusefs.NodeRemovexattrer = (*fileNode)(nil)
)

func (n *fileNode) contentPath() (string, error) {
	entry, err := n.entry()
	if err != nil {
		return "", err
	}
	leaf, err := n.fsys.vault.Resolver.ResolveLeaf(entry.Kind.ParentDirID(), entry.Kind.Name())
	if err != nil {
		return "", translateErr(err)
	}
	return leaf.ContentPath(), nil
}

func translateXattrErr(err error) error {
	if err == nil {
		return nil
	}
	if xattr.IsNotExist(err) {
		return fuse.Errno(syscall.ENODATA)
	}
	if xattr.IsNotSupported(err) {
		return fuse.Errno(syscall.ENOTSUP)
	}
	return fuse.EIO
}

func (n *fileNode) Getxattr(ctx context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	path, err := n.contentPath()
	if err != nil {
		return err
	}
	data, err := xattr.Get(path, req.Name)
	if err != nil {
		return translateXattrErr(err)
	}
	resp.Xattr = data
	return nil
}

func (n *fileNode) Listxattr(ctx context.Context, req *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	path, err := n.contentPath()
	if err != nil {
		return err
	}
	names, err := xattr.List(path)
	if err != nil {
		return translateXattrErr(err)
	}
	var buf bytes.Buffer
	for _, name := range names {
		buf.WriteString(name)
		buf.WriteByte(0)
	}
	resp.Xattr = buf.Bytes()
	return nil
}

func (n *fileNode) Setxattr(ctx context.Context, req *fuse.SetxattrRequest) error {
	path, err := n.contentPath()
	if err != nil {
		return err
	}
	if err := xattr.Set(path, req.Name, req.Xattr); err != nil {
		return translateXattrErr(err)
	}
	return nil
}

func (n *fileNode) Removexattr(ctx context.Context, req *fuse.RemovexattrRequest) error {
	path, err := n.contentPath()
	if err != nil {
		return err
	}
	if err := xattr.Remove(path, req.Name); err != nil {
		return translateXattrErr(err)
	}
	return nil
}
