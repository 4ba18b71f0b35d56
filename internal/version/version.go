// Package version holds the build-time identifier reported by the
// `version` command (spec.md §4.1) and the CLI's --version flag.
package version

// Version is overridden at build time with -ldflags
// "-X github.com/ketralnis/gomemcached/internal/version.Version=...".
var Version = "1.0.0"
