package logfs

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestFillSuper_Root(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")

	if sb.Magic != Magic {
		t.Errorf("Magic = %#x, want %#x", sb.Magic, Magic)
	}
	if sb.UUID == uuid.Nil {
		t.Error("superblock has no UUID")
	}
	if got := sb.State(); got != StateMounted {
		t.Errorf("State = %v, want mounted", got)
	}
	root := sb.Root()
	if root == nil {
		t.Fatal("no root dentry")
	}
	if !root.IsRoot() || root.Name != "/" || root.Path() != "/" {
		t.Errorf("root dentry = %q parent %q", root.Name, root.Parent.Name)
	}
	inode := root.Inode()
	if inode.Type != TypeDirectory || inode.Nlink() != 2 {
		t.Errorf("root inode type %v nlink %d", inode.Type, inode.Nlink())
	}
	if inode.iop != sb.resolver || inode.fop != sb.resolver {
		t.Error("root inode is not wired to the resolver")
	}
	if inode.Mode != os.ModeDir|0o755 {
		t.Errorf("root mode = %v", inode.Mode)
	}
	if sb.Type() != d.Type() {
		t.Error("superblock has the wrong filesystem type")
	}
}

func TestFillSuper_Options(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "mode=0700,uid=1000,gid=2000,nr_inodes=3")
	root := rootInode(t, sb)

	if root.Mode.Perm() != 0o700 || root.Uid != 1000 || root.Gid != 2000 {
		t.Errorf("root = %v %d:%d", root.Mode, root.Uid, root.Gid)
	}

	st := sb.Statfs()
	if st.Type != Magic || st.NameLen != MaxNameLen || st.BlockSize != BlockSize {
		t.Errorf("Statfs = %+v", st)
	}
	if st.Files != 3 || st.FilesFree != 2 {
		t.Errorf("Statfs files = %d free %d, want 3 and 2", st.Files, st.FilesFree)
	}

	ctx := context.Background()
	for _, name := range []string{"a", "b"} {
		if _, err := root.Mkdir(ctx, name, 0o755); err != nil {
			t.Fatalf("Mkdir(%q): %v", name, err)
		}
	}
	if _, err := root.Mkdir(ctx, "c", 0o755); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Mkdir past nr_inodes = %v, want ErrOutOfMemory", err)
	}
	if got := sb.Statfs().FilesFree; got != 0 {
		t.Errorf("FilesFree = %d, want 0", got)
	}
}

func TestFillSuper_BadOptions(t *testing.T) {
	d, _ := newTestDriver(t)
	_, err := d.Mount(context.Background(), "/dev/loop0", 0, "bogus=1")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Mount = %v, want ErrInvalidArgument", err)
	}
	if n := len(d.Mounted()); n != 0 {
		t.Errorf("%d instances mounted after a failed mount", n)
	}
}

func TestFillSuper_RootInodeOutOfMemory(t *testing.T) {
	alloc := &failingAlloc{Allocator: NewQuota(Limits{}), failInode: true}
	d, j := newTestDriver(t, WithAllocator(func(Limits) Allocator { return alloc }))

	_, err := d.Mount(context.Background(), "/dev/loop0", 0, "")
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Mount = %v, want ErrOutOfMemory", err)
	}
	var merr *MountError
	if !errors.As(err, &merr) || merr.Device != "/dev/loop0" {
		t.Errorf("error %v is not a MountError for the device", err)
	}
	if n := len(d.Host().Superblocks()); n != 0 {
		t.Errorf("%d superblocks visible after a failed mount", n)
	}
	if got := j.CountByOp()["fill_super"]; got != 1 {
		t.Errorf("journal fill_super records = %d, want 1", got)
	}

	// The device is free again.
	alloc.failInode = false
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	if sb.Root() == nil {
		t.Error("remount has no root")
	}
}

func TestFillSuper_RootDentryOutOfMemory(t *testing.T) {
	var last *failingAlloc
	d, _ := newTestDriver(t, WithAllocator(func(l Limits) Allocator {
		last = &failingAlloc{Allocator: NewQuota(l), failDentry: true}
		return last
	}))

	_, err := d.Mount(context.Background(), "/dev/loop0", 0, "")
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Mount = %v, want ErrOutOfMemory", err)
	}
	if n := len(d.Mounted()); n != 0 {
		t.Errorf("%d instances mounted after a failed mount", n)
	}
	if u := last.Usage(); u.Inodes != 0 || u.Dentries != 0 {
		t.Errorf("failed fill leaked %+v", u)
	}
}

func TestFillSuper_NilRootShortCircuits(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := newSuperblock(d.Type(), "/dev/loop9", 0)
	d.newAlloc = func(Limits) Allocator {
		return &failingAlloc{Allocator: NewQuota(Limits{}), failInode: true}
	}

	err := d.FillSuper(context.Background(), sb, "", true)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("FillSuper = %v, want ErrOutOfMemory", err)
	}
	if sb.Root() != nil {
		t.Error("failed fill left a root dentry")
	}
	if sb.LiveInodes() != 0 {
		t.Errorf("failed fill left %d inodes", sb.LiveInodes())
	}
}

func TestUnmount_ReleasesInstance(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	root := rootInode(t, sb)
	if _, err := root.Mkdir(context.Background(), "a", 0o755); err != nil {
		t.Fatal(err)
	}

	if err := d.Unmount(context.Background(), sb); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	if sb.Root() != nil {
		t.Error("root still reachable after unmount")
	}
	if got := sb.State(); got != StateUnmounted {
		t.Errorf("State = %v, want unmounted", got)
	}
	if u := sb.Usage(); u.Inodes != 0 || u.Dentries != 0 {
		t.Errorf("Usage after unmount = %+v", u)
	}
	if _, err := sb.Resolve(context.Background(), "/a"); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Resolve after unmount = %v, want ErrNotMounted", err)
	}
	if err := d.Unmount(context.Background(), sb); !errors.Is(err, ErrNotMounted) {
		t.Errorf("second Unmount = %v, want ErrNotMounted", err)
	}
}

func TestUnmount_RejectsCreation(t *testing.T) {
	ctx := context.Background()
	m := newFakeMetrics()
	d, _ := newTestDriver(t, WithMetrics(m))
	old := mustMount(t, d, "/dev/loop0", 0, "")
	stale := rootInode(t, old)
	if err := d.Unmount(ctx, old); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	sb := mustMount(t, d, "/dev/loop0", 0, "")
	if _, err := rootInode(t, sb).Mkdir(ctx, "live", 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := stale.Mkdir(ctx, "ghost", 0o755); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Mkdir on unmounted root = %v, want ErrNotMounted", err)
	}
	if _, err := old.CreateInode(ctx, stale, os.ModeDir|0o755, 0); !errors.Is(err, ErrNotMounted) {
		t.Errorf("CreateInode on unmounted instance = %v, want ErrNotMounted", err)
	}
	if n := old.LiveInodes(); n != 0 {
		t.Errorf("unmounted instance holds %d inodes", n)
	}
	if u := old.Usage(); u.Inodes != 0 || u.Dentries != 0 {
		t.Errorf("unmounted instance usage = %+v", u)
	}

	m.mu.Lock()
	live := m.live["/dev/loop0"]
	m.mu.Unlock()
	if live != 2 {
		t.Errorf("live inodes gauge = %d, want 2 from the remounted instance", live)
	}
}
