package dispatch

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version information for the dispatch library.
// These values are injected during build time via ldflags.
// The values below are fallbacks for development builds.
var (
	// Version is the semantic version of the library.
	Version = "dev"

	// GitCommit is the git commit hash when the binary was built.
	GitCommit = "unknown"
)

// VersionInfo contains detailed version information.
type VersionInfo struct {
	// Version is the semantic version of the library.
	Version string `json:"version"`

	// GitCommit is the git commit hash.
	GitCommit string `json:"git_commit"`

	// GoVersion is the Go version used for building.
	GoVersion string `json:"go_version"`

	// Platform is the target platform (GOOS/GOARCH).
	Platform string `json:"platform"`
}

// GetVersionInfo returns detailed version information, preferring module
// metadata from the build when available.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if build, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range build.Settings {
			if setting.Key == "vcs.revision" && info.GitCommit == "unknown" {
				info.GitCommit = setting.Value
			}
		}
	}

	return info
}

// String returns a human-readable version string.
func (v VersionInfo) String() string {
	return fmt.Sprintf("dispatch %s (commit %s, %s, %s)", v.Version, v.GitCommit, v.GoVersion, v.Platform)
}
