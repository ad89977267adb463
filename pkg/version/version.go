package version

// Values are injected at build time via -ldflags.
var (
	GitVersion = "devel"
	GitCommit  = "unknown"
)

// Short returns a one-line version string.
func Short() string {
	return GitVersion + " (" + GitCommit + ")"
}
