// Package version reports the chainkit build identity.
//
// Version, commit and build time are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/chainkit/version.Version=1.2.0" ./cmd/chainkit
//
// Unset values fall back to the module build info recorded by the Go
// toolchain.
package version
