// Package version identifies the build. Values are injected with
// -ldflags at release time; development builds fall back to whatever the
// embedded module build info carries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func init() {
	if GitCommit != "unknown" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			GitCommit = setting.Value
		case "vcs.time":
			BuildTime = setting.Value
		}
	}
}

// GetVersionInfo renders the one-line version banner.
func GetVersionInfo() string {
	return fmt.Sprintf("dialbridge version %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildTime, runtime.Version())
}
