// Package version holds build information populated at link time via ldflags.
package version

import "runtime"

var (
	// GitRelease is the release tag or branch the binary was built from.
	GitRelease = "dev"
	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"
	// GitCommitDate is the commit date the binary was built from.
	GitCommitDate = "unknown"
	// GoInfo is the Go toolchain version used for the build.
	GoInfo = runtime.Version()
)
