package logfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// MaxNameLen is the longest entry name, in bytes, a directory accepts.
const MaxNameLen = 255

// DefaultBatch is the number of entries Iterate returns when no limit is given.
const DefaultBatch = 64

// Cursor is an opaque position in a directory enumeration. The zero value
// starts at the beginning.
type Cursor uint64

// DirEntry is one element of a directory enumeration. Next is the cursor
// that resumes right after this entry.
type DirEntry struct {
	Name string
	Ino  uint64
	Type FileType
	Next Cursor
}

// Resolver is the directory operation set. It is attached to every
// directory inode of its superblock.
type Resolver struct {
	sb *Superblock
}

var (
	_ InodeOperations = (*Resolver)(nil)
	_ FileOperations  = (*Resolver)(nil)
)

// Lookup resolves name among the children of dir by exact, case-sensitive
// comparison. It never creates the child: a missing name yields a negative
// dentry and a nil error.
func (r *Resolver) Lookup(ctx context.Context, dir *Inode, name string) (*Dentry, error) {
	start := r.sb.rec.clock()
	if dir.dir == nil {
		err := dir.notDirectory("lookup", name)
		r.sb.rec.observe("lookup", r.sb.Device, dir.Ino, name, start, err)
		return nil, err
	}

	tbl := dir.dir
	tbl.mu.RLock()
	self := tbl.self
	var d *Dentry
	switch name {
	case ".":
		d = self
	case "..":
		d = self.Parent
	default:
		d = tbl.find(name)
	}
	tbl.mu.RUnlock()

	if d == nil {
		r.sb.rec.observeOutcome("lookup", r.sb.Device, dir.Ino, name, start, outcomeNegative)
		return newDentry(self, name, nil), nil
	}
	r.sb.rec.observe("lookup", r.sb.Device, dir.Ino, name, start, nil)
	return d, nil
}

// Iterate enumerates dir: "." first, ".." second, then the children in
// creation order. Positions past the end yield an empty batch.
func (r *Resolver) Iterate(ctx context.Context, dir *Inode, pos Cursor, limit int) ([]DirEntry, Cursor, error) {
	start := r.sb.rec.clock()
	if dir.dir == nil {
		err := dir.notDirectory("iterate", "")
		r.sb.rec.observe("iterate", r.sb.Device, dir.Ino, "", start, err)
		return nil, pos, err
	}
	if limit <= 0 {
		limit = DefaultBatch
	}

	tbl := dir.dir
	tbl.mu.RLock()
	defer tbl.mu.RUnlock()

	total := Cursor(len(tbl.entries)) + 2
	var out []DirEntry
	for p := pos; p < total && len(out) < limit; p++ {
		var e DirEntry
		switch p {
		case 0:
			e = DirEntry{Name: ".", Ino: dir.Ino, Type: dir.Type}
		case 1:
			parent := tbl.self.Parent.inode
			e = DirEntry{Name: "..", Ino: parent.Ino, Type: parent.Type}
		default:
			child := tbl.entries[p-2]
			e = DirEntry{Name: child.Name, Ino: child.inode.Ino, Type: child.inode.Type}
		}
		e.Next = p + 1
		out = append(out, e)
	}
	next := pos + Cursor(len(out))

	r.sb.rec.observe("iterate", r.sb.Device, dir.Ino, "", start, nil)
	return out, next, nil
}

// Create makes a child of dir through the inode factory. Creations under
// one directory are serialized, so of two concurrent creators of the same
// name one succeeds and the other gets ErrExists. A failed creation leaves
// dir unchanged.
func (r *Resolver) Create(ctx context.Context, dir *Inode, name string, mode os.FileMode, rdev uint32) (*Dentry, error) {
	start := r.sb.rec.clock()
	op := "create"
	if TypeOf(mode) == TypeDirectory {
		op = "mkdir"
	}
	d, err := r.create(ctx, dir, name, mode, rdev)
	if err != nil {
		var oerr *OpError
		if !errors.As(err, &oerr) {
			err = &OpError{Op: op, Device: r.sb.Device, Ino: dir.Ino, Name: name, Err: err}
		}
		r.sb.rec.observe(op, r.sb.Device, dir.Ino, name, start, err)
		return nil, err
	}
	r.sb.rec.observe(op, r.sb.Device, d.inode.Ino, name, start, nil)
	return d, nil
}

func (r *Resolver) create(ctx context.Context, dir *Inode, name string, mode os.FileMode, rdev uint32) (*Dentry, error) {
	if dir.dir == nil {
		return nil, ErrNotDirectory
	}
	if r.sb.ReadOnly() {
		return nil, ErrReadOnly
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	tbl := dir.dir
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	if tbl.find(name) != nil {
		return nil, ErrExists
	}
	if r.sb.factory == nil || r.sb.closed() {
		return nil, ErrNotMounted
	}
	inode, err := r.sb.factory.New(ctx, r.sb, dir, mode, rdev)
	if err != nil {
		return nil, err
	}
	if err := r.sb.alloc.ReserveDentry(); err != nil {
		r.sb.evict(inode)
		if !errors.Is(err, ErrOutOfMemory) {
			err = fmt.Errorf("%w: %w", ErrOutOfMemory, err)
		}
		return nil, err
	}
	r.sb.dentries.Add(1)

	d := newDentry(tbl.self, name, inode)
	if inode.dir != nil {
		inode.dir.self = d
	}
	tbl.insert(d)
	if inode.IsDir() {
		dir.incNlink()
	}
	dir.touch(r.sb.rec.clock())
	return d, nil
}

func validateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalidName
	case strings.ContainsAny(name, "/\x00"):
		return ErrInvalidName
	case len(name) > MaxNameLen:
		return ErrNameTooLong
	}
	return nil
}
