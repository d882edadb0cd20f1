// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Build with, for example:
//
//	go build -ldflags "-X github.com/OpenDDS/OpenDDS-sub024/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/dcps-link
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set via -ldflags at build time. Left unset, Info
// falls back to the VCS stamp the go command embeds in the binary.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// stamp is the commit, dirtiness and time a binary reports.
type stamp struct {
	commit string
	dirty  bool
	time   string
}

// current merges the ldflags variables with the embedded build info.
// Injected values win.
func current() stamp {
	s := stamp{commit: GitCommit, dirty: GitDirty == "true", time: BuildTime}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return s
	}
	return s.fill(info.Settings)
}

func (s stamp) fill(settings []debug.BuildSetting) stamp {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if s.commit == "unknown" && setting.Value != "" {
				s.commit = setting.Value[:min(len(setting.Value), 7)]
			}
		case "vcs.time":
			if s.time == "unknown" && setting.Value != "" {
				s.time = setting.Value
			}
		case "vcs.modified":
			if GitDirty == "false" && setting.Value == "true" {
				s.dirty = true
			}
		}
	}
	return s
}

func (s stamp) String() string {
	dirty := ""
	if s.dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, s.commit, dirty, s.time)
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return current().String()
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
