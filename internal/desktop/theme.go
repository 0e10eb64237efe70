package desktop

import (
	"os/exec"
	"runtime"
	"strings"
)

// Themes reported to the titlebar.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Package-level hooks for testing.
var (
	currentGOOS = runtime.GOOS
	readCommand = func(name string, args ...string) (string, error) {
		out, err := exec.Command(name, args...).Output()
		return string(out), err
	}
)

// DetectSystemTheme returns ThemeDark or ThemeLight based on OS settings.
// Falls back to light, the embedded app's own palette, if detection fails.
func DetectSystemTheme() string {
	switch currentGOOS {
	case "darwin":
		return detectMacOSTheme()
	case "linux":
		return detectLinuxTheme()
	default:
		return ThemeLight
	}
}

// detectMacOSTheme checks AppleInterfaceStyle for dark mode
func detectMacOSTheme() string {
	out, err := readCommand("defaults", "read", "-g", "AppleInterfaceStyle")
	if err != nil {
		// Key doesn't exist when in light mode
		return ThemeLight
	}
	if strings.TrimSpace(out) == "Dark" {
		return ThemeDark
	}
	return ThemeLight
}

// detectLinuxTheme checks GNOME/GTK settings for dark mode
func detectLinuxTheme() string {
	// GNOME 42+ color-scheme first
	if out, err := readCommand("gsettings", "get", "org.gnome.desktop.interface", "color-scheme"); err == nil {
		lower := strings.ToLower(out)
		if strings.Contains(lower, "dark") {
			return ThemeDark
		}
		if strings.Contains(lower, "light") || strings.Contains(lower, "default") {
			return ThemeLight
		}
	}

	if out, err := readCommand("gsettings", "get", "org.gnome.desktop.interface", "gtk-theme"); err == nil &&
		strings.Contains(strings.ToLower(out), "dark") {
		return ThemeDark
	}
	return ThemeLight
}

// BackgroundRGB is the window background shown before the page paints.
func BackgroundRGB(theme string) (r, g, b uint8) {
	if theme == ThemeDark {
		return 0x1f, 0x20, 0x24
	}
	return 0xff, 0xff, 0xff
}
