// Package version holds the build version, overridable at link time:
//
//	go build -ldflags "-X github.com/untoldecay/LoreVault/internal/version.Version=1.2.3"
package version

// Version is the server and CLI version.
var Version = "0.9.0"
