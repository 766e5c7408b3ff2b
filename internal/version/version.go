// Package version reports which evalview build is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time with
// -ldflags "-X evalview/internal/version.Commit=$(git rev-parse HEAD)".
var (
	Version   = "0.4.0"
	Commit    = ""
	BuildDate = ""
)

// Revision returns Commit, falling back to the VCS revision the Go
// toolchain stamped into the binary, shortened to 7 characters.
func Revision() string {
	rev := Commit
	if rev == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					rev = s.Value
				}
			}
		}
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	return rev
}

// Full returns the one-line version banner
func Full() string {
	s := "evalview " + Version
	if rev := Revision(); rev != "" {
		s += " (" + rev + ")"
	}
	if BuildDate != "" {
		s += " built " + BuildDate
	}
	return s + fmt.Sprintf(" %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
