// Package version exposes the kioku build identity, stamped at link time.
package version

// Stamped via -ldflags "-X github.com/bdobrica/kioku/common/version.Version=..."
// and the matching GitCommit/BuildTime flags; defaults identify a local
// development build.
var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info renders the version line printed by "kioku version".
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
