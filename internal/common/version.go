package common

import "fmt"

// Version, BuildTime, and GitCommit are stamped at build time via
// -ldflags "-X github.com/linkcheckerpro/linkchecker/internal/common.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the bare semantic version.
func GetVersion() string {
	return Version
}

// GetFullVersion returns the version annotated with build time and commit,
// the form written into crash reports. The --version flag and the startup
// banner print the bare GetVersion form.
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, BuildTime, GitCommit)
}
