package logfs

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	// Magic identifies logfs superblocks.
	Magic uint32 = 0x02042019

	// FilesystemName is the type name logfs registers under.
	FilesystemName = "logfs"

	// BlockSize is the block size reported by Statfs. No blocks are used.
	BlockSize = 4096
)

// MountFlags modify a mount request.
type MountFlags uint32

const (
	MountReadOnly MountFlags = 1 << iota
	MountSilent               // suppress diagnostics for a failed mount
)

func (f MountFlags) String() string {
	var parts []string
	if f&MountReadOnly != 0 {
		parts = append(parts, "ro")
	} else {
		parts = append(parts, "rw")
	}
	if f&MountSilent != 0 {
		parts = append(parts, "silent")
	}
	return strings.Join(parts, ",")
}

// SuperblockState tracks one instance from allocation to teardown.
type SuperblockState int32

const (
	StateInitializing SuperblockState = iota
	StateMounted
	StateUnmounted
)

func (s SuperblockState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateMounted:
		return "mounted"
	case StateUnmounted:
		return "unmounted"
	default:
		return fmt.Sprintf("SuperblockState(%d)", int32(s))
	}
}

// Superblock is one instance of a filesystem type.
type Superblock struct {
	Magic  uint32
	UUID   uuid.UUID
	Device string
	Flags  MountFlags

	fsType   *FilesystemType
	factory  *InodeFactory
	resolver *Resolver
	alloc    Allocator
	opts     mountOptions
	rec      *recorder

	mu       sync.Mutex
	state    SuperblockState
	root     *Dentry
	inodes   map[uint64]*Inode
	dentries atomic.Int64
}

func newSuperblock(t *FilesystemType, device string, flags MountFlags) *Superblock {
	sb := &Superblock{
		UUID:   uuid.New(),
		Device: device,
		Flags:  flags,
		fsType: t,
		alloc:  NewQuota(Limits{}),
		inodes: make(map[uint64]*Inode),
	}
	sb.resolver = &Resolver{sb: sb}
	return sb
}

// Root returns the root dentry, nil until the instance is filled and after
// it is torn down.
func (sb *Superblock) Root() *Dentry {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.root
}

func (sb *Superblock) State() SuperblockState {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.state
}

// closed reports whether the instance has been torn down. A closed
// instance accepts no new inodes.
func (sb *Superblock) closed() bool {
	return sb.State() == StateUnmounted
}

func (sb *Superblock) setState(s SuperblockState) {
	sb.mu.Lock()
	sb.state = s
	sb.mu.Unlock()
}

// Type returns the filesystem type the instance was mounted as.
func (sb *Superblock) Type() *FilesystemType { return sb.fsType }

func (sb *Superblock) ReadOnly() bool { return sb.Flags&MountReadOnly != 0 }

// LiveInodes returns the number of inodes the instance holds.
func (sb *Superblock) LiveInodes() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.inodes)
}

// Usage reports the instance's allocator holdings.
func (sb *Superblock) Usage() Usage { return sb.alloc.Usage() }

// CreateInode runs the inode factory for this instance. The inode is owned
// by sb but not linked into the namespace.
func (sb *Superblock) CreateInode(ctx context.Context, parent *Inode, mode os.FileMode, rdev uint32) (*Inode, error) {
	if sb.factory == nil || sb.closed() {
		return nil, &OpError{Op: "create_inode", Device: sb.Device, Err: ErrNotMounted}
	}
	return sb.factory.New(ctx, sb, parent, mode, rdev)
}

// Resolve walks path from the root, one lookup per component.
func (sb *Superblock) Resolve(ctx context.Context, path string) (*Dentry, error) {
	d := sb.Root()
	if d == nil {
		return nil, &OpError{Op: "resolve", Device: sb.Device, Name: path, Err: ErrNotMounted}
	}
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		next, err := d.inode.Lookup(ctx, name)
		if err != nil {
			return nil, err
		}
		if next.Negative() {
			return nil, &OpError{Op: "resolve", Device: sb.Device, Ino: d.inode.Ino, Name: name, Err: ErrNotFound}
		}
		d = next
	}
	return d, nil
}

// Statfs describes an instance for statfs(2).
type Statfs struct {
	Type       uint32
	BlockSize  uint32
	Blocks     uint64
	BlocksFree uint64
	Files      uint64
	FilesFree  uint64
	NameLen    uint32
}

func (sb *Superblock) Statfs() Statfs {
	u := sb.alloc.Usage()
	st := Statfs{
		Type:      sb.Magic,
		BlockSize: BlockSize,
		NameLen:   MaxNameLen,
	}
	if u.MaxInodes > 0 {
		st.Files = uint64(u.MaxInodes)
		st.FilesFree = uint64(max(u.MaxInodes-u.Inodes, 0))
	}
	return st
}

// track adds i to the instance. It fails once the instance is torn down.
func (sb *Superblock) track(i *Inode) error {
	sb.mu.Lock()
	if sb.state == StateUnmounted {
		sb.mu.Unlock()
		return ErrNotMounted
	}
	sb.inodes[i.Ino] = i
	n := len(sb.inodes)
	sb.mu.Unlock()
	sb.reportLive(n)
	return nil
}

// evict frees an inode that never made it into the namespace.
func (sb *Superblock) evict(i *Inode) {
	sb.mu.Lock()
	_, ok := sb.inodes[i.Ino]
	delete(sb.inodes, i.Ino)
	n := len(sb.inodes)
	sb.mu.Unlock()
	if !ok {
		return
	}
	sb.alloc.ReleaseInode()
	sb.reportLive(n)
}

// kill releases everything the instance holds. Nothing is written back.
func (sb *Superblock) kill() {
	sb.mu.Lock()
	for range sb.inodes {
		sb.alloc.ReleaseInode()
	}
	clear(sb.inodes)
	for n := sb.dentries.Swap(0); n > 0; n-- {
		sb.alloc.ReleaseDentry()
	}
	sb.root = nil
	sb.state = StateUnmounted
	sb.mu.Unlock()
	sb.reportLive(0)
}

func (sb *Superblock) reportLive(n int) {
	if sb.rec != nil && sb.rec.metrics != nil {
		sb.rec.metrics.SetLiveInodes(sb.Device, int64(n))
	}
}

// SuperblockFiller initializes a freshly allocated superblock. It is the
// callback the block device mount helper runs.
type SuperblockFiller interface {
	FillSuper(ctx context.Context, sb *Superblock, data string, silent bool) error
}

// FillFunc adapts a function to SuperblockFiller.
type FillFunc func(ctx context.Context, sb *Superblock, data string, silent bool) error

func (f FillFunc) FillSuper(ctx context.Context, sb *Superblock, data string, silent bool) error {
	return f(ctx, sb, data, silent)
}
