package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the service current released version.
// This value can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/hrygo/divinechat/internal/version.Version=0.4.0"
var Version = "0.4.0"

// DevVersion is reported in dev and demo mode.
var DevVersion = Version + "-dev"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

// IsCompatible reports whether a client built from this tree can talk to a
// server reporting serverVersion. The event-stream record shapes only change
// on minor bumps, so major.minor must match.
func IsCompatible(serverVersion string) bool {
	s := canonical(serverVersion)
	if !semver.IsValid(s) {
		return false
	}
	return semver.MajorMinor(s) == semver.MajorMinor(canonical(Version))
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	// Drop a "-<commit>" or "-dev" suffix; prerelease ordering is irrelevant here.
	if i := strings.IndexByte(v, '-'); i > 0 {
		v = v[:i]
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
