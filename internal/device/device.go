// Package device derives a human-readable device display name from a raw
// user agent string. The name is attached to session snapshots and cache
// diagnostics; it is informational only and never part of an identity check.
package device

import (
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

const unknownDevice = "Unknown Device"

// DisplayName parses a user agent into "Browser on OS" form. Unparseable
// input falls back to generic names rather than failing.
func DisplayName(rawUserAgent string) string {
	if strings.TrimSpace(rawUserAgent) == "" {
		return unknownDevice
	}

	ua := useragent.New(rawUserAgent)

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	osName := ua.OSInfo().FullName
	if osName == "" {
		osName = ua.Platform()
	}
	if osName == "" {
		osName = "Unknown OS"
	}

	name := fmt.Sprintf("%s on %s", browser, osName)
	return strings.Join(strings.Fields(name), " ")
}
