// Package buildinfo carries release identifiers stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/ritikbhatt20/copperx-telegram-bot/core/buildinfo.Version=v0.3.0"
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Summary renders "version (commit, date)". A missing commit falls back to the
// VCS revision embedded by the Go toolchain.
func Summary() string {
	commit := Commit
	if commit == "" {
		commit = vcsRevision()
	}
	s := Version
	switch {
	case commit != "" && Date != "":
		s += " (" + commit + ", " + Date + ")"
	case commit != "":
		s += " (" + commit + ")"
	}
	return s
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, kv := range info.Settings {
		if kv.Key == "vcs.revision" {
			if len(kv.Value) > 7 {
				return kv.Value[:7]
			}
			return kv.Value
		}
	}
	return ""
}
