// Package protocol registers the shell as the OS handler of its custom URL
// scheme, so auth callbacks from the system browser launch (or reach) it.
package protocol

import (
	"fmt"
	"regexp"
)

// AppID names the registration artifacts (desktop entry, registry label).
const AppID = "hopewell-desktop"

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*$`)

// Register makes exe the handler for scheme://... URLs for the current user.
// On macOS the handler comes from the bundle's Info.plist and Register does
// nothing.
func Register(scheme, exe string) error {
	if !schemePattern.MatchString(scheme) {
		return fmt.Errorf("invalid url scheme %q", scheme)
	}
	if exe == "" {
		return fmt.Errorf("executable path is required")
	}
	return register(scheme, exe)
}
