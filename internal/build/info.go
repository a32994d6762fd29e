// Package build exposes version metadata stamped in at link time.
package build

import "fmt"

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

// String returns a single human-readable build info string.
func String() string {
	return fmt.Sprintf("mailhook %s (commit %s, built %s)", Version, CommitSHA, BuildDate)
}
