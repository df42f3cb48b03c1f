// Package main provides the logfs command-line interface.
//
// logfs is an in-memory filesystem whose every metadata operation is
// recorded in an activity journal. Instances hold directories only; the
// root directory is created at mount time and new directories are added
// with mkdir. Other file types are refused with EOPNOTSUPP.
//
// The main binary supports multiple subcommands:
//   - mount: Serve a logfs instance at a mountpoint through FUSE
//   - check: Exercise an in-process instance and report PASS/FAIL per check
//   - journal: Print an activity journal saved by mount
//
// Configuration is read from an optional YAML file (--config) and LOGFS_*
// environment variables.
package main
