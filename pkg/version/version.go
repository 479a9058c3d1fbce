// Package version carries build metadata injected with -ldflags -X.
package version

import (
	"runtime/debug"
)

// Version is the release version of the trendscope binary.
var Version = "dev"

// BinaryGitHash is the Git hash of the trendscope binary file which is executing.
var BinaryGitHash = "<unknown>"

// Info is the build metadata of the running binary.
type Info struct {
	Version   string `json:"version"    yaml:"version"`
	GitHash   string `json:"git_hash"   yaml:"git_hash"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

// Get returns the build metadata. A missing hash falls back to the VCS
// revision Go embedded at build time.
func Get() Info {
	info := Info{Version: Version, GitHash: BinaryGitHash}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	info.GoVersion = bi.GoVersion

	if info.GitHash == "<unknown>" {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.GitHash = s.Value
			}
		}
	}

	return info
}
