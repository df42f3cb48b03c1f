package fusefs

import (
	"context"
	"os"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/dendrascience/logfs/logfs"
)

// Dir is a directory node. It is also its own handle.
type Dir struct {
	fs     *FS
	dentry *logfs.Dentry
}

var (
	_ fs.Node               = (*Dir)(nil)
	_ fs.NodeStringLookuper = (*Dir)(nil)
	_ fs.HandleReadDirAller = (*Dir)(nil)
	_ fs.NodeMkdirer        = (*Dir)(nil)
	_ fs.NodeCreater        = (*Dir)(nil)
	_ fs.NodeSymlinker      = (*Dir)(nil)
	_ fs.NodeMknoder        = (*Dir)(nil)
)

func (d *Dir) inode() *logfs.Inode { return d.dentry.Inode() }

// Attr returns directory attributes
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	st := d.inode().Stat()
	a.Inode = st.Ino
	a.Mode = st.Mode
	a.Nlink = st.Nlink
	a.Uid = st.Uid
	a.Gid = st.Gid
	a.Rdev = st.Rdev
	a.Atime = st.Atime
	a.Mtime = st.Mtime
	a.Ctime = st.Ctime
	a.BlockSize = logfs.BlockSize
	return nil
}

// Lookup resolves a name under d. A negative result is answered with
// ENOENT: bazil has no reply carrying a cacheable negative entry, so the
// kernel asks again on the next lookup of the name.
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	child, err := d.inode().Lookup(ctx, name)
	if err != nil {
		return nil, errno(err)
	}
	if child.Negative() {
		return nil, errno(logfs.ErrNotFound)
	}
	return d.node(child)
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	var dirents []fuse.Dirent
	for e, err := range d.inode().Entries(ctx, 0) {
		if err != nil {
			return nil, errno(err)
		}
		dirents = append(dirents, fuse.Dirent{
			Inode: e.Ino,
			Name:  e.Name,
			Type:  direntType(e.Type),
		})
	}
	return dirents, nil
}

func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	perm := req.Mode &^ req.Umask
	child, err := d.inode().Mkdir(credentials(ctx, req.Header), req.Name, perm)
	if err != nil {
		d.fs.log.Debug("mkdir rejected", "op", "fusefs.Dir.Mkdir", "name", req.Name, "error", err)
		return nil, errno(err)
	}
	return d.node(child)
}

// Create always reaches the inode factory, which rejects regular files.
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	mode := req.Mode &^ req.Umask
	child, err := d.inode().Create(credentials(ctx, req.Header), req.Name, mode, 0)
	if err != nil {
		return nil, nil, errno(err)
	}
	node, err := d.node(child)
	if err != nil {
		return nil, nil, err
	}
	return node, node, nil
}

func (d *Dir) Symlink(ctx context.Context, req *fuse.SymlinkRequest) (fs.Node, error) {
	child, err := d.inode().Create(credentials(ctx, req.Header), req.NewName, os.ModeSymlink|0o777, 0)
	if err != nil {
		return nil, errno(err)
	}
	return d.node(child)
}

func (d *Dir) Mknod(ctx context.Context, req *fuse.MknodRequest) (fs.Node, error) {
	child, err := d.inode().Create(credentials(ctx, req.Header), req.Name, req.Mode&^req.Umask, req.Rdev)
	if err != nil {
		return nil, errno(err)
	}
	return d.node(child)
}

// node wraps a resolved dentry. Only directories exist in a logfs
// namespace.
func (d *Dir) node(child *logfs.Dentry) (fs.Node, error) {
	if !child.Inode().IsDir() {
		return nil, errno(logfs.ErrUnsupportedType)
	}
	return &Dir{fs: d.fs, dentry: child}, nil
}

func direntType(t logfs.FileType) fuse.DirentType {
	switch t {
	case logfs.TypeDirectory:
		return fuse.DT_Dir
	case logfs.TypeRegular:
		return fuse.DT_File
	case logfs.TypeSymlink:
		return fuse.DT_Link
	default:
		return fuse.DT_Unknown
	}
}
