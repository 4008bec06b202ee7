// Package version reports the dagflow build.
//
// Version, commit and build time are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/dagflow/version.Version=0.4.0" ./cmd/dagflow
//
// Unset values fall back to the VCS stamps Go embeds in the binary.
package version
