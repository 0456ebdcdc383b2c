// Package build holds the version details of the niiview binary.
package build

import (
	"runtime"
	"runtime/debug"
)

// Version is the current semantic version of niiview.
const Version = "0.3.0"

const commitKey = "vcs.revision"

// VersionDetails returns the version, commit and platform details.
func VersionDetails() map[string]string {
	details := map[string]string{
		"version":    "v" + Version,
		"go_version": runtime.Version(),
		"go_os":      runtime.GOOS,
		"go_arch":    runtime.GOARCH,
	}

	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		for _, s := range buildInfo.Settings {
			if s.Key == commitKey && s.Value != "" {
				details["commit"] = s.Value
			}
		}
	}
	return details
}

// FullVersion returns the version followed by the commit and platform.
func FullVersion() string {
	d := VersionDetails()
	v := d["version"]
	if commit, ok := d["commit"]; ok {
		if len(commit) > 10 {
			commit = commit[:10]
		}
		v += " (commit/" + commit + ", "
	} else {
		v += " ("
	}
	return v + d["go_version"] + ", " + d["go_os"] + "/" + d["go_arch"] + ")"
}
