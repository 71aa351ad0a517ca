// Package version carries build metadata injected with -ldflags.
package version

var (
	// Version is the semantic version of the binary.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// String renders the metadata on one line.
func String() string {
	return Version + " (" + Commit + ", " + BuildDate + ")"
}
