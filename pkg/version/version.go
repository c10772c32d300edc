package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// Set at build time with -ldflags:
	// -X github.com/wattline/wattline/pkg/version.Version=vX.Y.Z
	// -X github.com/wattline/wattline/pkg/version.Commit=<sha>
	Version = "dev"
	Commit  = ""
)

func Current() (version, commit string) {
	version = strings.TrimSpace(Version)
	if version == "" {
		version = "dev"
	}
	commit = strings.TrimSpace(Commit)

	// Fallback to embedded VCS info when ldflags are not provided.
	if commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					commit = strings.TrimSpace(s.Value)
				}
			}
		}
	}
	return version, commit
}

func String() string {
	version, commit := Current()
	if commit == "" {
		return fmt.Sprintf("wattline %s", version)
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("wattline %s+%s", version, commit)
}
