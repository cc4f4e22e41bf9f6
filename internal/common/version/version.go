package version

import (
	_ "embed"
	"strings"
)

// Version information embedded from the VERSION file at compile time.
// The CLI and the HTTP User-Agent header share this single source.

//go:embed VERSION
var versionRaw string

// Version is the current xin version, trimmed of whitespace.
var Version = strings.TrimSpace(versionRaw)

// Get returns the current version string.
func Get() string {
	return Version
}

// UserAgent returns the User-Agent header value sent with every HTTP request.
func UserAgent() string {
	return "xin/" + Version
}
