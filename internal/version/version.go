package version

import "runtime"

// Overridden at build time via -ldflags.
var (
	Version   = "dev"             // ex: v0.2.0
	Commit    = "none"            // ex: abcd123
	GoVersion = runtime.Version() // toolchain used for the build
)
