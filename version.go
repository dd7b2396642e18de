package registry

import "fmt"

// Build metadata, injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/waghostel/MedicalDeviceRegulationAgent-sub012.Version=v1.2.0"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// VersionInfo returns a human-readable build description.
func VersionInfo() string {
	return fmt.Sprintf("registry-client %s (commit %s, built %s)", Version, Commit, BuildDate)
}

// userAgent identifies this client on outgoing requests.
func userAgent() string {
	return "registry-client/" + Version
}
