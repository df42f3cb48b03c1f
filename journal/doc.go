// Package journal records the activity of a logfs instance.
//
// Every filesystem-level operation the core performs (registration,
// mounting, inode creation, name resolution, directory iteration,
// unmounting) is appended to a Journal as a Record. The journal is a
// bounded ring: once Capacity records are held, the oldest are dropped
// and counted in Dropped.
//
// Records carry a monotonically increasing sequence number, so a reader
// can page through the journal with Since and resume where it left off
// even while writers keep appending.
package journal
