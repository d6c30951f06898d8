// Package version carries build metadata set with -ldflags "-X".
package version

import "fmt"

//nolint:revive // overwritten by the linker
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the banner printed by -version.
func String(binary string) string {
	return fmt.Sprintf("%s %s (%s, %s)", binary, Version, Commit, Date)
}
