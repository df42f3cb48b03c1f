package logfs

import (
	"errors"
	"testing"
)

func TestQuota_Limits(t *testing.T) {
	q := NewQuota(Limits{MaxInodes: 2, MaxDentries: 1})

	for i := range 2 {
		if err := q.ReserveInode(); err != nil {
			t.Fatalf("ReserveInode #%d: %v", i, err)
		}
	}
	if err := q.ReserveInode(); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("third ReserveInode = %v, want ErrOutOfMemory", err)
	}
	q.ReleaseInode()
	if err := q.ReserveInode(); err != nil {
		t.Errorf("ReserveInode after release: %v", err)
	}

	if err := q.ReserveDentry(); err != nil {
		t.Fatalf("ReserveDentry: %v", err)
	}
	if err := q.ReserveDentry(); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("second ReserveDentry = %v, want ErrOutOfMemory", err)
	}

	u := q.Usage()
	if u.Inodes != 2 || u.MaxInodes != 2 || u.Dentries != 1 || u.MaxDentries != 1 {
		t.Errorf("Usage = %+v", u)
	}
}

func TestQuota_Unlimited(t *testing.T) {
	q := NewQuota(Limits{})
	for i := range 10000 {
		if err := q.ReserveInode(); err != nil {
			t.Fatalf("ReserveInode #%d: %v", i, err)
		}
	}
	if got := q.Usage().Inodes; got != 10000 {
		t.Errorf("Inodes = %d, want 10000", got)
	}
}

// failingAlloc fails the reservations it is told to fail.
type failingAlloc struct {
	Allocator
	failInode  bool
	failDentry bool
}

func (a *failingAlloc) ReserveInode() error {
	if a.failInode {
		return ErrOutOfMemory
	}
	return a.Allocator.ReserveInode()
}

func (a *failingAlloc) ReserveDentry() error {
	if a.failDentry {
		return errors.New("dentry cache exhausted")
	}
	return a.Allocator.ReserveDentry()
}
