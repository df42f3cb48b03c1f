package logfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// InodeOperations resolve and create names under a directory inode.
type InodeOperations interface {
	Lookup(ctx context.Context, dir *Inode, name string) (*Dentry, error)
	Create(ctx context.Context, dir *Inode, name string, mode os.FileMode, rdev uint32) (*Dentry, error)
}

// FileOperations enumerate an open directory.
type FileOperations interface {
	Iterate(ctx context.Context, dir *Inode, pos Cursor, limit int) ([]DirEntry, Cursor, error)
}

// Inode is the metadata of one filesystem object. The identity fields are
// fixed at creation; link count and timestamps change under mu.
type Inode struct {
	Ino  uint64
	Mode os.FileMode
	Type FileType
	Uid  uint32
	Gid  uint32
	Rdev uint32

	sb   *Superblock
	caps Capabilities
	iop  InodeOperations
	fop  FileOperations

	mu    sync.Mutex
	nlink uint32
	atime time.Time
	mtime time.Time
	ctime time.Time

	dir *dirTable // directories only
}

// Attr is a point-in-time copy of an inode's attributes.
type Attr struct {
	Ino   uint64
	Mode  os.FileMode
	Type  FileType
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Rdev  uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

func (i *Inode) Stat() Attr {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Attr{
		Ino:   i.Ino,
		Mode:  i.Mode,
		Type:  i.Type,
		Nlink: i.nlink,
		Uid:   i.Uid,
		Gid:   i.Gid,
		Rdev:  i.Rdev,
		Atime: i.atime,
		Mtime: i.mtime,
		Ctime: i.ctime,
	}
}

func (i *Inode) Nlink() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.nlink
}

func (i *Inode) IsDir() bool { return i.Type == TypeDirectory }

// Superblock returns the instance that owns i.
func (i *Inode) Superblock() *Superblock { return i.sb }

func (i *Inode) incNlink() {
	i.mu.Lock()
	i.nlink++
	i.mu.Unlock()
}

// touch sets the modification and change times, as after a namespace change.
func (i *Inode) touch(t time.Time) {
	i.mu.Lock()
	i.mtime, i.ctime = t, t
	i.mu.Unlock()
}

func (i *Inode) device() string {
	if i.sb == nil {
		return ""
	}
	return i.sb.Device
}

func (i *Inode) notDirectory(op, name string) error {
	return &OpError{Op: op, Device: i.device(), Ino: i.Ino, Name: name, Err: ErrNotDirectory}
}

// Lookup resolves name in directory i. A missing name is not an error: the
// returned dentry is negative.
func (i *Inode) Lookup(ctx context.Context, name string) (*Dentry, error) {
	if !i.caps.Lookup || i.iop == nil {
		return nil, i.notDirectory("lookup", name)
	}
	return i.iop.Lookup(ctx, i, name)
}

// Iterate returns up to limit entries of directory i starting at pos, and
// the cursor to continue from. An empty batch means the end was reached.
func (i *Inode) Iterate(ctx context.Context, pos Cursor, limit int) ([]DirEntry, Cursor, error) {
	if !i.caps.Iterate || i.fop == nil {
		return nil, pos, i.notDirectory("iterate", "")
	}
	return i.fop.Iterate(ctx, i, pos, limit)
}

// Create makes a new child called name in directory i.
func (i *Inode) Create(ctx context.Context, name string, mode os.FileMode, rdev uint32) (*Dentry, error) {
	if !i.caps.Create || i.iop == nil {
		return nil, i.notDirectory("create", name)
	}
	return i.iop.Create(ctx, i, name, mode, rdev)
}

// Mkdir creates a child directory with permission bits perm.
func (i *Inode) Mkdir(ctx context.Context, name string, perm os.FileMode) (*Dentry, error) {
	return i.Create(ctx, name, os.ModeDir|(perm&(os.ModePerm|os.ModeSetgid|os.ModeSticky)), 0)
}

// Entries lazily enumerates directory i from pos, fetching one batch at a
// time. Iteration stops at the first error, which is yielded once.
func (i *Inode) Entries(ctx context.Context, pos Cursor) func(yield func(DirEntry, error) bool) {
	return func(yield func(DirEntry, error) bool) {
		for {
			batch, next, err := i.Iterate(ctx, pos, 0)
			if err != nil {
				yield(DirEntry{}, err)
				return
			}
			if len(batch) == 0 {
				return
			}
			for _, e := range batch {
				if !yield(e, nil) {
					return
				}
			}
			pos = next
		}
	}
}

// InodeFactory builds inodes. One factory, and with it one serial counter,
// is shared by every instance a Driver mounts.
type InodeFactory struct {
	counter *InodeCounter
	rec     *recorder
}

// NewInodeFactory returns a factory numbering inodes from counter.
func NewInodeFactory(counter *InodeCounter) *InodeFactory {
	if counter == nil {
		counter = &InodeCounter{}
	}
	return &InodeFactory{counter: counter}
}

// New creates an inode of the variant encoded in mode for sb. Ownership is
// taken from the credentials on ctx, adjusted by parent's setgid bit; a nil
// parent marks the root inode.
func (f *InodeFactory) New(ctx context.Context, sb *Superblock, parent *Inode, mode os.FileMode, rdev uint32) (*Inode, error) {
	start := f.rec.clock()
	var parentIno uint64
	if parent != nil {
		parentIno = parent.Ino
	}

	t := TypeOf(mode)
	caps := CapabilitiesOf(t)
	if !caps.Supported {
		err := &OpError{Op: "create_inode", Device: sb.Device, Ino: parentIno, Err: ErrUnsupportedType}
		f.rec.logger().Error("unsupported file type requested",
			"op", "logfs.InodeFactory.New",
			"device", sb.Device,
			"type", t.String(),
			"mode", mode.String(),
		)
		f.rec.observe("create_inode", sb.Device, parentIno, "", start, err)
		return nil, err
	}

	if err := sb.alloc.ReserveInode(); err != nil {
		if !errors.Is(err, ErrOutOfMemory) {
			err = fmt.Errorf("%w: %w", ErrOutOfMemory, err)
		}
		oerr := &OpError{Op: "create_inode", Device: sb.Device, Ino: parentIno, Err: err}
		f.rec.observe("create_inode", sb.Device, parentIno, "", start, oerr)
		return nil, oerr
	}

	cred := CredentialsFrom(ctx)
	gid := cred.Gid
	if parent != nil && parent.Mode&os.ModeSetgid != 0 {
		gid = parent.Gid
		if t == TypeDirectory {
			mode |= os.ModeSetgid
		}
	}

	now := f.rec.clock()
	inode := &Inode{
		Ino:   f.counter.Next(),
		Mode:  mode,
		Type:  t,
		Uid:   cred.Uid,
		Gid:   gid,
		Rdev:  rdev,
		sb:    sb,
		caps:  caps,
		nlink: 1,
		atime: now,
		mtime: now,
		ctime: now,
	}
	if t == TypeDirectory {
		inode.nlink = 2
		inode.iop = sb.resolver
		inode.fop = sb.resolver
		inode.dir = newDirTable()
		// disconnected until linked into the namespace
		inode.dir.self = newDentry(nil, "", inode)
	}
	if err := sb.track(inode); err != nil {
		sb.alloc.ReleaseInode()
		oerr := &OpError{Op: "create_inode", Device: sb.Device, Ino: parentIno, Err: err}
		f.rec.observe("create_inode", sb.Device, parentIno, "", start, oerr)
		return nil, oerr
	}

	f.rec.observe("create_inode", sb.Device, inode.Ino, "", start, nil)
	return inode, nil
}
