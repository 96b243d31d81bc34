package version

import "runtime/debug"

// These variables are set via ldflags during build
var (
	// Version is the semantic version of plugwatch
	Version = "dev"

	// Commit is the git commit hash
	Commit = "none"

	// Date is the build date
	Date = "unknown"
)

// GetVersion returns the version, falling back to the module version
// recorded by `go install` when no ldflags were given.
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// GetFullVersion returns the complete version information
func GetFullVersion() string {
	return GetVersion() + " (commit: " + Commit + ", built: " + Date + ")"
}
