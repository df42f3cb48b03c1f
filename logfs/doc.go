// Package logfs implements the metadata core of a minimal logging filesystem.
//
// The package provides four cooperating pieces:
//   - the inode factory (InodeFactory), which stamps serial numbers,
//     ownership and timestamps and applies the per-type capability table
//   - the directory resolver (Resolver), which resolves names, enumerates
//     directories in resumable batches and creates child directories
//   - the superblock initializer (Driver.FillSuper), which builds the root
//     of a mounted instance
//   - the mount lifecycle manager (Driver), which registers the "logfs"
//     filesystem type with a Host and mounts and unmounts instances
//
// Host stands in for the kernel's VFS layer: it keeps the table of
// registered filesystem types, the set of live superblocks, and offers
// MountBlockDevice, the generic helper a filesystem type hands its
// SuperblockFiller to. The fusefs package serves a mounted instance to
// the real kernel through FUSE.
//
// Nothing is persisted. Every operation the core performs is recorded in
// a journal.Journal, logged through log/slog and counted in the optional
// metrics.FSMetrics.
package logfs
