package logfs

import "sync"

// InodeCounter hands out inode serial numbers. A Driver shares one counter
// between all the instances it mounts, so serials never repeat within the
// process.
type InodeCounter struct {
	mu      sync.Mutex
	highest uint64
}

// Next returns a serial number never returned before by c.
func (c *InodeCounter) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.highest++
	return c.highest
}

// Highest returns the last serial handed out, 0 if none.
func (c *InodeCounter) Highest() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highest
}
