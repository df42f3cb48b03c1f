package logfs

import (
	"strings"
	"sync"

	"github.com/taigrr/colorhash"
)

// Dentry binds a name under a parent directory to an inode. A dentry with
// no inode is negative: it records that the name is absent.
type Dentry struct {
	Name   string
	Parent *Dentry // the root is its own parent

	hash  int
	inode *Inode
}

func newDentry(parent *Dentry, name string, inode *Inode) *Dentry {
	d := &Dentry{Name: name, Parent: parent, hash: colorhash.HashString(name), inode: inode}
	if parent == nil {
		d.Parent = d
	}
	return d
}

// Inode returns the bound inode, nil for a negative dentry.
func (d *Dentry) Inode() *Inode { return d.inode }

func (d *Dentry) Negative() bool { return d.inode == nil }

func (d *Dentry) IsRoot() bool { return d.Parent == d }

// Path returns the slash separated path of d from the root of its instance.
func (d *Dentry) Path() string {
	if d.IsRoot() {
		return "/"
	}
	var parts []string
	for cur := d; !cur.IsRoot(); cur = cur.Parent {
		parts = append(parts, cur.Name)
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

// dirTable holds the children of one directory. entries keeps creation
// order for enumeration; buckets index the same dentries by name hash.
type dirTable struct {
	mu      sync.RWMutex
	self    *Dentry
	entries []*Dentry
	buckets map[int][]*Dentry
}

func newDirTable() *dirTable {
	return &dirTable{buckets: make(map[int][]*Dentry)}
}

// find must be called with mu held.
func (t *dirTable) find(name string) *Dentry {
	for _, d := range t.buckets[colorhash.HashString(name)] {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// insert must be called with mu held for writing.
func (t *dirTable) insert(d *Dentry) {
	t.entries = append(t.entries, d)
	t.buckets[d.hash] = append(t.buckets[d.hash], d)
}

func (t *dirTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
