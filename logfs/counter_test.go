package logfs

import (
	"sync"
	"testing"
)

func TestInodeCounter_Increments(t *testing.T) {
	var c InodeCounter
	if got := c.Highest(); got != 0 {
		t.Fatalf("fresh counter Highest = %d, want 0", got)
	}
	first := c.Next()
	second := c.Next()
	if first != 1 {
		t.Errorf("first serial = %d, want 1", first)
	}
	if second != first+1 {
		t.Errorf("second serial should be first+1: got %d, want %d", second, first+1)
	}
	if got := c.Highest(); got != second {
		t.Errorf("Highest = %d, want %d", got, second)
	}
}

func TestInodeCounter_Concurrent(t *testing.T) {
	var c InodeCounter
	numGoroutines := 50
	perGoroutine := 200

	results := make(chan uint64, numGoroutines*perGoroutine)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for range numGoroutines {
		go func() {
			defer wg.Done()
			for range perGoroutine {
				results <- c.Next()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint64]bool)
	for ino := range results {
		if seen[ino] {
			t.Errorf("duplicate serial: %d", ino)
		}
		seen[ino] = true
	}
	if want := numGoroutines * perGoroutine; len(seen) != want {
		t.Errorf("expected %d unique serials, got %d", want, len(seen))
	}
	if got := c.Highest(); got != uint64(numGoroutines*perGoroutine) {
		t.Errorf("Highest = %d, want %d", got, numGoroutines*perGoroutine)
	}
}
