package logfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLookup_DotEntriesOfRoot(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	root := rootInode(t, sb)

	for _, name := range []string{".", ".."} {
		de, err := root.Lookup(context.Background(), name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if de.Negative() || de.Inode() != root {
			t.Errorf("Lookup(%q) does not resolve to the root inode", name)
		}
	}
}

func TestLookup_MissingIsNegative(t *testing.T) {
	d, j := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")

	de, err := rootInode(t, sb).Lookup(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !de.Negative() {
		t.Fatal("expected a negative dentry")
	}
	if de.Name != "missing" || de.Parent != sb.Root() {
		t.Errorf("negative dentry = %q under %q", de.Name, de.Parent.Name)
	}

	var last string
	for r := range j.Iterate {
		if r.Op == "lookup" {
			last = r.Outcome
		}
	}
	if last != outcomeNegative {
		t.Errorf("journal lookup outcome = %q, want %q", last, outcomeNegative)
	}
}

func TestLookup_CaseSensitive(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	root := rootInode(t, sb)
	if _, err := root.Mkdir(context.Background(), "Data", 0o755); err != nil {
		t.Fatal(err)
	}

	de, err := root.Lookup(context.Background(), "data")
	if err != nil {
		t.Fatal(err)
	}
	if !de.Negative() {
		t.Error("lookup matched a name differing only in case")
	}
	de, err = root.Lookup(context.Background(), "Data")
	if err != nil || de.Negative() {
		t.Errorf("Lookup(Data) = %v, %v", de, err)
	}
}

func TestIterate_EmptyDirectory(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	root := rootInode(t, sb)
	ctx := context.Background()

	batch, cursor, err := root.Iterate(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if got := entryNames(batch); !slices.Equal(got, []string{".", ".."}) {
		t.Fatalf("entries = %v, want [. ..]", got)
	}
	for _, e := range batch {
		if e.Ino != root.Ino || e.Type != TypeDirectory {
			t.Errorf("entry %q = ino %d type %v", e.Name, e.Ino, e.Type)
		}
	}

	for i := range 2 {
		rest, next, err := root.Iterate(ctx, cursor, 0)
		if err != nil {
			t.Fatalf("Iterate from cursor (call %d): %v", i, err)
		}
		if len(rest) != 0 {
			t.Errorf("call %d: continuation = %v, want empty", i, entryNames(rest))
		}
		if next != cursor {
			t.Errorf("call %d: cursor moved from %d to %d", i, cursor, next)
		}
	}
}

func TestIterate_BatchesInCreationOrder(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	root := rootInode(t, sb)
	ctx := context.Background()

	created := []string{"zeta", "alpha", "mid"}
	for _, name := range created {
		if _, err := root.Mkdir(ctx, name, 0o755); err != nil {
			t.Fatalf("Mkdir(%q): %v", name, err)
		}
	}

	var names []string
	var cursor Cursor
	for calls := 0; ; calls++ {
		if calls > 10 {
			t.Fatal("enumeration did not terminate")
		}
		batch, next, err := root.Iterate(ctx, cursor, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(batch) == 0 {
			break
		}
		if len(batch) > 2 {
			t.Errorf("batch of %d exceeds limit 2", len(batch))
		}
		if batch[len(batch)-1].Next != next {
			t.Errorf("last entry Next = %d, cursor = %d", batch[len(batch)-1].Next, next)
		}
		names = append(names, entryNames(batch)...)
		cursor = next
	}

	want := append([]string{".", ".."}, created...)
	if !slices.Equal(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}

	// Resuming from an entry's cursor continues right after it.
	again, _, err := root.Iterate(ctx, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := entryNames(again); !slices.Equal(got, []string{"alpha", "mid"}) {
		t.Errorf("resume at 3 = %v", got)
	}
}

func TestMkdir(t *testing.T) {
	d, j := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	root := rootInode(t, sb)
	ctx := context.Background()

	child, err := root.Mkdir(ctx, "logs", 0o700)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if child.Name != "logs" || child.Parent != sb.Root() {
		t.Errorf("dentry = %q under %v", child.Name, child.Parent)
	}
	if got := child.Path(); got != "/logs" {
		t.Errorf("Path = %q", got)
	}
	if got := child.Inode().Nlink(); got != 2 {
		t.Errorf("child Nlink = %d, want 2", got)
	}
	if got := root.Nlink(); got != 3 {
		t.Errorf("root Nlink = %d, want 3", got)
	}
	if got := child.Inode().Mode.Perm(); got != 0o700 {
		t.Errorf("child perm = %o, want 700", got)
	}

	found, err := root.Lookup(ctx, "logs")
	if err != nil || found != child {
		t.Fatalf("Lookup(logs) = %v, %v", found, err)
	}
	up, err := child.Inode().Lookup(ctx, "..")
	if err != nil || up.Inode() != root {
		t.Errorf("Lookup(..) from child = %v, %v", up, err)
	}

	nested, err := child.Inode().Mkdir(ctx, "2024", 0o755)
	if err != nil {
		t.Fatal(err)
	}
	if got := nested.Path(); got != "/logs/2024" {
		t.Errorf("nested Path = %q", got)
	}
	resolved, err := sb.Resolve(ctx, "/logs/2024")
	if err != nil || resolved != nested {
		t.Errorf("Resolve = %v, %v", resolved, err)
	}
	if _, err := sb.Resolve(ctx, "/logs/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) = %v, want ErrNotFound", err)
	}

	if got := j.CountByOp()["mkdir"]; got != 2 {
		t.Errorf("journal mkdir records = %d, want 2", got)
	}
}

func TestMkdir_Errors(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	root := rootInode(t, sb)
	ctx := context.Background()
	if _, err := root.Mkdir(ctx, "taken", 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		entry   string
		wantErr error
	}{
		{"duplicate", "taken", ErrExists},
		{"empty", "", ErrInvalidName},
		{"dot", ".", ErrInvalidName},
		{"dotdot", "..", ErrInvalidName},
		{"slash", "a/b", ErrInvalidName},
		{"nul", "a\x00b", ErrInvalidName},
		{"too long", strings.Repeat("x", MaxNameLen+1), ErrNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := root.Mkdir(ctx, tt.entry, 0o755)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Mkdir = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := root.Mkdir(ctx, strings.Repeat("x", MaxNameLen), 0o755); err != nil {
		t.Errorf("Mkdir with a %d byte name: %v", MaxNameLen, err)
	}
	if got := root.dir.len(); got != 2 {
		t.Errorf("root holds %d entries, want 2", got)
	}
}

func TestCreate_UnsupportedLeavesParentUnchanged(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	root := rootInode(t, sb)
	ctx := context.Background()
	nlink := root.Nlink()
	mtime := root.Stat().Mtime

	for _, mode := range []os.FileMode{0o644, os.ModeSymlink | 0o777} {
		if _, err := root.Create(ctx, "file", mode, 0); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("Create(%v) = %v, want ErrUnsupportedType", mode, err)
		}
	}
	batch, _, err := root.Iterate(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Errorf("entries after failed create = %v", entryNames(batch))
	}
	if root.Nlink() != nlink || !root.Stat().Mtime.Equal(mtime) {
		t.Error("failed create modified the parent")
	}
	if got := sb.LiveInodes(); got != 1 {
		t.Errorf("LiveInodes = %d, want 1", got)
	}
}

func TestCreate_DentryExhaustion(t *testing.T) {
	// The root dentry takes the only slot.
	d, _ := newTestDriver(t, WithLimits(Limits{MaxDentries: 1}))
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	root := rootInode(t, sb)

	_, err := root.Mkdir(context.Background(), "full", 0o755)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Mkdir = %v, want ErrOutOfMemory", err)
	}
	if got := sb.LiveInodes(); got != 1 {
		t.Errorf("LiveInodes = %d, want 1", got)
	}
	if u := sb.Usage(); u.Inodes != 1 || u.Dentries != 1 {
		t.Errorf("Usage = %+v, want one inode and one dentry", u)
	}
	if got := root.Nlink(); got != 2 {
		t.Errorf("root Nlink = %d, want 2", got)
	}
}

func TestCreate_ReadOnly(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", MountReadOnly, "")

	_, err := rootInode(t, sb).Mkdir(context.Background(), "nope", 0o755)
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("Mkdir on read-only instance = %v, want ErrReadOnly", err)
	}
}

func TestCreate_ConcurrentSameName(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	root := rootInode(t, sb)

	const workers = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, exists := 0, 0
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			_, err := root.Mkdir(context.Background(), "race", 0o755)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrExists):
				exists++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent Mkdir deadlocked")
	}

	if wins != 1 || exists != workers-1 {
		t.Errorf("wins = %d, exists = %d", wins, exists)
	}
	if got := root.dir.len(); got != 1 {
		t.Errorf("root holds %d entries, want 1", got)
	}
	if got := root.Nlink(); got != 3 {
		t.Errorf("root Nlink = %d, want 3", got)
	}
}

func TestLookup_ConcurrentWithCreate(t *testing.T) {
	d, _ := newTestDriver(t)
	sb := mustMount(t, d, "/dev/loop0", 0, "")
	root := rootInode(t, sb)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 200 {
			if _, err := root.Mkdir(ctx, fmt.Sprintf("d%03d", i), 0o755); err != nil {
				t.Errorf("Mkdir: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			if _, err := root.Lookup(ctx, "d100"); err != nil {
				t.Errorf("Lookup: %v", err)
				return
			}
			if _, _, err := root.Iterate(ctx, 0, 8); err != nil {
				t.Errorf("Iterate: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}
