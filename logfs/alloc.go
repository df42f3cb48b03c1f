package logfs

import "sync/atomic"

// Allocator reserves the slots new inodes and dentries occupy. A failed
// reservation is how the core observes memory exhaustion; every successful
// Reserve must be paired with a Release once the object is freed.
type Allocator interface {
	ReserveInode() error
	ReleaseInode()
	ReserveDentry() error
	ReleaseDentry()
	Usage() Usage
}

// Limits bound the objects a single instance may hold. Zero means
// unlimited.
type Limits struct {
	MaxInodes   int64
	MaxDentries int64
}

// Usage reports an allocator's current holdings against its limits.
type Usage struct {
	Inodes      int64
	MaxInodes   int64
	Dentries    int64
	MaxDentries int64
}

type quota struct {
	limits   Limits
	inodes   atomic.Int64
	dentries atomic.Int64
}

// NewQuota returns an allocator enforcing l. It is the default allocator of
// every mounted instance.
func NewQuota(l Limits) Allocator {
	return &quota{limits: l}
}

func reserve(n *atomic.Int64, max int64) error {
	for {
		cur := n.Load()
		if max > 0 && cur >= max {
			return ErrOutOfMemory
		}
		if n.CompareAndSwap(cur, cur+1) {
			return nil
		}
	}
}

func (q *quota) ReserveInode() error  { return reserve(&q.inodes, q.limits.MaxInodes) }
func (q *quota) ReleaseInode()        { q.inodes.Add(-1) }
func (q *quota) ReserveDentry() error { return reserve(&q.dentries, q.limits.MaxDentries) }
func (q *quota) ReleaseDentry()       { q.dentries.Add(-1) }

func (q *quota) Usage() Usage {
	return Usage{
		Inodes:      q.inodes.Load(),
		MaxInodes:   q.limits.MaxInodes,
		Dentries:    q.dentries.Load(),
		MaxDentries: q.limits.MaxDentries,
	}
}
