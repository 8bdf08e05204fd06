// Package config carries the build metadata stamped into PulseWatch
// binaries via -ldflags.
package config

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo is the stamped metadata plus the compiling Go version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// VersionString returns a one-line human readable form.
func VersionString() string {
	return fmt.Sprintf("pulsewatch %s (%s) built at %s with %s",
		Version, Commit, BuildTime, runtime.Version())
}
