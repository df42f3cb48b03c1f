package logfs

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dendrascience/logfs/journal"
)

var testTime = time.Date(2019, 4, 2, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testTime }

// newTestDriver returns a registered driver with a fixed clock and a journal.
func newTestDriver(t *testing.T, opts ...Option) (*Driver, *journal.Journal) {
	t.Helper()
	j := journal.New(1024)
	opts = append([]Option{WithJournal(j), WithClock(fixedClock)}, opts...)
	d := NewDriver(NewHost(nil), opts...)
	if err := d.Register(context.Background()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return d, j
}

func mustMount(t *testing.T, d *Driver, device string, flags MountFlags, data string) *Superblock {
	t.Helper()
	sb, err := d.Mount(context.Background(), device, flags, data)
	if err != nil {
		t.Fatalf("Mount(%q): %v", device, err)
	}
	return sb
}

func rootInode(t *testing.T, sb *Superblock) *Inode {
	t.Helper()
	root := sb.Root()
	if root == nil || root.Inode() == nil {
		t.Fatal("superblock has no root")
	}
	return root.Inode()
}

func entryNames(entries []DirEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// lockedBuffer collects log output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bufferLogger(b *lockedBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(b, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fakeMetrics struct {
	mu      sync.Mutex
	ops     map[string]int
	mounted int
	live    map[string]int64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{ops: make(map[string]int), live: make(map[string]int64)}
}

func (m *fakeMetrics) RecordOperation(op, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op+"/"+outcome]++
}

func (m *fakeMetrics) SetMountedInstances(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounted = n
}

func (m *fakeMetrics) SetLiveInodes(device string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[device] = n
}
