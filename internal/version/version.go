package version

import (
	"runtime/debug"
	"strings"
)

// Set at link time via -ldflags "-X github.com/fmueller/whisperd/internal/version.Version=...".
var (
	Version = "0.1.0"
	Commit  = ""
	Date    = ""
)

// Resolve returns the release version, suffixed with the VCS revision when the
// binary was not built from a tagged release.
func Resolve() string {
	return resolveVersion(Version, Commit, debug.ReadBuildInfo)
}

func UserAgent() string {
	return "whisperd/" + Resolve()
}

func resolveVersion(base, commit string, buildInfo func() (*debug.BuildInfo, bool)) string {
	if base == "" {
		base = "0.0.0"
	}

	revision, dirty := strings.TrimSpace(commit), false
	if revision == "" && buildInfo != nil {
		revision, dirty = vcsRevision(buildInfo)
	}
	if revision == "" {
		return base
	}

	if len(revision) > 12 {
		revision = revision[:12]
	}
	if dirty {
		revision += "-dirty"
	}
	return base + "+" + revision
}

func vcsRevision(buildInfo func() (*debug.BuildInfo, bool)) (string, bool) {
	info, ok := buildInfo()
	if !ok || info == nil {
		return "", false
	}

	var revision string
	var dirty bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return revision, dirty
}
