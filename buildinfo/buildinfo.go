// Package buildinfo reports the version of the e2eflow binary.
//
// Release builds inject the values with ldflags:
//
//	go build -ldflags "-X github.com/nomis52/e2eflow/buildinfo.version=v1.2.0 \
//	    -X github.com/nomis52/e2eflow/buildinfo.gitCommit=$(git rev-parse HEAD)"
//
// Values that were not injected fall back to what the Go toolchain embedded.
package buildinfo

import (
	"runtime"
	"runtime/debug"
)

const unknown = "unknown"

// Properties describes a build.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
}

var (
	version   = unknown
	buildTime = unknown
	gitCommit = unknown
)

// Get returns the current build properties.
func Get() Properties {
	props := Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
		GoVersion: runtime.Version(),
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		fillFrom(&props, info)
	}
	return props
}

func fillFrom(props *Properties, info *debug.BuildInfo) {
	if props.Version == unknown && info.Main.Version != "" && info.Main.Version != "(devel)" {
		props.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if props.GitCommit == unknown {
				props.GitCommit = s.Value
			}
		case "vcs.time":
			if props.BuildTime == unknown {
				props.BuildTime = s.Value
			}
		}
	}
}
