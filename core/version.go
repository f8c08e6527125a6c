package core

// Version information for the storefront client.
// Set at build time with -ldflags "-X github.com/itsneelabh/storefront/core.Version=...".
var (
	// Version is the current client version
	Version = "development"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
