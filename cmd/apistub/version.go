package main

import (
	_ "embed"
	"fmt"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var embeddedVersion string

// buildSettings are the VCS fields debug.ReadBuildInfo reports.
type buildSettings struct {
	goVersion string
	revision  string
	modified  bool
}

func readBuild() (mainVersion string, s buildSettings, ok bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", s, false
	}
	s.goVersion = info.GoVersion
	for _, kv := range info.Settings {
		switch kv.Key {
		case "vcs.revision":
			s.revision = kv.Value
		case "vcs.modified":
			s.modified = kv.Value == "true"
		}
	}
	return info.Main.Version, s, true
}

// Version returns the module version for `go install ...@version` builds
// and "devel-<VERSION>[+rev]" otherwise.
func Version() string {
	base := strings.TrimSpace(embeddedVersion)
	mainVersion, s, ok := readBuild()
	if !ok {
		return base
	}
	if mainVersion != "" && mainVersion != "(devel)" {
		return mainVersion
	}
	if len(s.revision) >= 7 {
		return "devel-" + base + "+" + s.revision[:7]
	}
	return "devel-" + base
}

// BuildInfo is the verbose version line.
func BuildInfo() string {
	_, s, ok := readBuild()
	if !ok {
		return Version()
	}
	line := fmt.Sprintf("apistub %s (%s)", Version(), s.goVersion)
	if s.modified {
		line += " dirty"
	}
	return line
}
