// Package buildinfo contains build-time metadata injected at link time,
// separate from user configuration.
package buildinfo

// Set via -ldflags at build time.
var (
	// Version holds the Git version tag from build
	Version = ""

	// BuildDate is the time when the binary was built
	BuildDate = ""
)

// GetVersion returns the build version string.
func GetVersion() string {
	if Version == "" {
		return "unknown"
	}
	return Version
}

// GetBuildDate returns the build date string.
func GetBuildDate() string {
	if BuildDate == "" {
		return "unknown"
	}
	return BuildDate
}

// String returns the version and build date in one line, for --version
// output.
func String() string {
	return GetVersion() + " (built " + GetBuildDate() + ")"
}
