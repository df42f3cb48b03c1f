// Package cmd provides the command-line interface of logfs.
//
// Commands are built with Cobra and styled by Fang:
//   - mount: serve a logfs instance at a mountpoint through FUSE
//   - check: mount an in-process instance and verify its metadata behavior
//   - journal: print an activity journal saved by mount
//
// Each command lives in its own file with a constructor returning a
// *cobra.Command. NewRootCmd wires them together.
package cmd
