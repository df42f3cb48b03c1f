// Package version reports the logfs build version.
//
// Values come from, in order of preference:
//   - variables set at link time (Version, Commit, Date)
//   - the module build info from debug.ReadBuildInfo()
//   - development defaults
//
// Release builds set them with:
//
//	-ldflags "-X github.com/dendrascience/logfs/version.Version=v1.0.0 -X github.com/dendrascience/logfs/version.Commit=abc123 -X github.com/dendrascience/logfs/version.Date=2024-01-01T00:00:00Z"
package version
