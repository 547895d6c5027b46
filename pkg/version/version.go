// Package version provides build information for actiond.
package version

import (
	"fmt"
	"runtime"
)

// Service is the name reported in traces and the version command.
const Service = "actiond"

// These variables are set during build time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// Info returns a map with all version information.
func Info() map[string]string {
	return map[string]string{
		"service":   Service,
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
		"goVersion": GoVersion,
	}
}

// String renders the build information on one line.
func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)", Service, Version, GitCommit, BuildTime, GoVersion)
}
