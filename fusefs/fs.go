// Package fusefs serves a mounted logfs instance over FUSE.
package fusefs

import (
	"context"
	"log/slog"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/dendrascience/logfs/logfs"
)

// FS adapts a logfs superblock to bazil.org/fuse.
type FS struct {
	sb  *logfs.Superblock
	log *slog.Logger
}

var (
	_ fs.FS         = (*FS)(nil)
	_ fs.FSStatfser = (*FS)(nil)
)

// New returns a FUSE filesystem serving sb. A nil logger discards output.
func New(sb *logfs.Superblock, log *slog.Logger) *FS {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &FS{sb: sb, log: log.With("device", sb.Device)}
}

// Root returns the root directory node
func (f *FS) Root() (fs.Node, error) {
	root := f.sb.Root()
	if root == nil {
		return nil, errno(logfs.ErrNotMounted)
	}
	return &Dir{fs: f, dentry: root}, nil
}

func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	st := f.sb.Statfs()
	resp.Blocks = st.Blocks
	resp.Bfree = st.BlocksFree
	resp.Bavail = st.BlocksFree
	resp.Files = st.Files
	resp.Ffree = st.FilesFree
	resp.Bsize = st.BlockSize
	resp.Frsize = st.BlockSize
	resp.Namelen = st.NameLen
	return nil
}

// errno converts a core error to the errno FUSE replies with.
func errno(err error) error {
	if err == nil {
		return nil
	}
	return fuse.Errno(logfs.Errno(err))
}

func credentials(ctx context.Context, h fuse.Header) context.Context {
	return logfs.WithCredentials(ctx, logfs.Credentials{Uid: h.Uid, Gid: h.Gid})
}
