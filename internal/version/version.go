// ABOUTME: Version, product, and manufacturer identifiers
// ABOUTME: Reported in the startup logs of both binaries
package version

const (
	// Version is this build's semantic version.
	Version = "0.1.0"
	// Product is the advertised product name.
	Product = "loopstream"
	// Manufacturer identifies the reference implementation's origin.
	Manufacturer = "loopstream project"
)
