// Package version carries build metadata injected via -ldflags.
package version

var (
	// Version is the sessionkit release version.
	Version = "dev"
	// GitSHA is the git commit SHA of the build.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String renders the full build identifier.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
