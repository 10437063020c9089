package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set through -ldflags at release build time.
var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func (i Info) String() string {
	return fmt.Sprintf("voxscribe %s (commit %s, built %s, %s, %s)", i.Version, i.Commit, i.Date, i.GoVersion, i.Platform)
}

// Get returns the build identity. Values missing from ldflags are filled from
// the VCS stamp that the go tool embeds in module builds.
func Get() Info {
	info, _ := debug.ReadBuildInfo()
	return resolve(Version, Commit, Date, info)
}

func resolve(base, commit, date string, build *debug.BuildInfo) Info {
	if base == "" {
		base = "0.0.0"
	}

	out := Info{
		Version:   base,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if build == nil {
		return out
	}

	var revision, modified, vcsTime string
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		}
	}

	if (out.Commit == "" || out.Commit == "unknown") && revision != "" {
		out.Commit = shortRevision(revision)
		if modified == "true" {
			out.Commit += "-dirty"
		}
		// A commit only known from the VCS stamp means this is not a
		// release build.
		out.Version = base + "-dev+" + shortRevision(revision)
	}
	if (out.Date == "" || out.Date == "unknown") && vcsTime != "" {
		out.Date = vcsTime
	}
	return out
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
