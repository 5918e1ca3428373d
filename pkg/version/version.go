// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

// Package version provides version information for the application
package version

import "fmt"

// Set with -ldflags "-X zonesync/pkg/version.Version=..." at build time
var (
	// Version is the current version of the application
	Version = "development"

	// BuildTime is when the application was built
	BuildTime = "unknown"
)

// String returns the version, with the build time when showBuild is set
func String(showBuild bool) string {
	if showBuild {
		return fmt.Sprintf("%s (built: %s)", Version, BuildTime)
	}
	return Version
}

// UserAgent identifies the bot in outbound HTTP requests
func UserAgent() string {
	return "zonesync/" + Version
}
