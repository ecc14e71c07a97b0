// Package version reports what binary is running.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

const Service = "tiktok-live-auction"

// Set with -ldflags "-X .../version.Version=..." by release builds.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

var vcs = sync.OnceValues(func() (revision, at string) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			at = s.Value
		}
	}
	return revision, at
})

// Get falls back to the VCS stamp of a plain `go build` when ldflags were not
// set.
func Get() Info {
	info := Info{
		Service:   Service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}

	revision, at := vcs()
	if info.Commit == "unknown" && revision != "" {
		info.Commit = revision
	}
	if info.BuildTime == "unknown" && at != "" {
		info.BuildTime = at
	}
	return info
}
