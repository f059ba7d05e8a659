// Package build carries version metadata and the logging bootstrap for
// the daemon.
package build

import (
	"fmt"
	"runtime/debug"
)

// Semantic version components, overridable at link time.
var (
	// AppMajor defines the major version of this binary.
	AppMajor uint = 0

	// AppMinor defines the minor version of this binary.
	AppMinor uint = 9

	// AppPatch defines the application patch for this binary.
	AppPatch uint = 0

	// AppPreRelease defines the pre-release label, empty for releases.
	AppPreRelease = "beta"

	// Commit is the VCS revision, set at link time. When empty the
	// revision embedded by the Go toolchain is used instead.
	Commit string
)

// Version returns the application version as a properly formed string.
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", AppMajor, AppMinor, AppPatch)
	if AppPreRelease != "" {
		version = fmt.Sprintf("%s-%s", version, AppPreRelease)
	}

	return version
}

// CommitHash returns the VCS revision baked into the binary.
func CommitHash() string {
	if Commit != "" {
		return Commit
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}

	var revision, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}
	if revision != "" && modified == "true" {
		revision += "-dirty"
	}

	return revision
}

// GoVersion returns the Go toolchain version the binary was built with.
func GoVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}

	return info.GoVersion
}
