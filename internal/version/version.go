// Package version carries build metadata stamped in at link time via
// -ldflags. Unstamped builds report "dev".
package version

var (
	// Version is the release version of the linger.watch binary.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
