// Package version reports which mirrorbox build is running. Release builds
// stamp it with
//
//	-ldflags "-X github.com/openmined/mirrorbox/internal/version.Version=1.2.3"
//
// and plain `go install` builds fall back to the module and vcs build info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
)

const AppName = "mirrorbox"

// overridden by -ldflags
var (
	Version   = ""
	Revision  = ""
	BuildDate = ""
)

const devVersion = "0.0.0-dev"

type Info struct {
	Version   string
	Revision  string
	Modified  bool
	BuildDate string
	GoVersion string
	Platform  string
}

var current = sync.OnceValue(func() Info {
	bi, _ := debug.ReadBuildInfo()
	return resolve(bi, Version, Revision, BuildDate)
})

// Get returns the running build
func Get() Info {
	return current()
}

// resolve prefers the ldflags stamp and fills gaps from build info
func resolve(bi *debug.BuildInfo, version, revision, date string) Info {
	info := Info{
		Version:   strings.TrimPrefix(version, "v"),
		Revision:  revision,
		BuildDate: date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if bi != nil {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = strings.TrimPrefix(bi.Main.Version, "v")
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Revision == "" {
					info.Revision = s.Value
				}
			case "vcs.modified":
				info.Modified = info.Modified || s.Value == "true"
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			}
		}
	}

	if info.Version == "" {
		info.Version = devVersion
	}
	return info
}

// ShortRevision is the first 7 characters of the commit, "unknown" when absent
func (i Info) ShortRevision() string {
	rev := i.Revision
	if rev == "" {
		return "unknown"
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if i.Modified {
		rev += "-dirty"
	}
	return rev
}

// String renders `1.2.3 (5e23a4f; go1.24.2; linux/amd64; 2025-01-01T00:00:00Z)`.
// The date is left out when unknown.
func (i Info) String() string {
	parts := []string{i.ShortRevision(), i.GoVersion, i.Platform}
	if i.BuildDate != "" {
		parts = append(parts, i.BuildDate)
	}
	return fmt.Sprintf("%s (%s)", i.Version, strings.Join(parts, "; "))
}

// UserAgent identifies mirrorbox to remote providers
func (i Info) UserAgent() string {
	return fmt.Sprintf("%s/%s (%s)", AppName, i.Version, i.Platform)
}
