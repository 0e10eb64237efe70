//go:build linux

package protocol

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Package-level hooks for testing.
var (
	getDataHome = defaultDataHome
	runCommand  = func(name string, args ...string) error {
		return exec.Command(name, args...).Run()
	}
)

func defaultDataHome() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share"), nil
}

func desktopEntry(scheme, exe string) string {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	b.WriteString("Name=Hopewell Clinic\n")
	fmt.Fprintf(&b, "Exec=%s %%u\n", quoteExec(exe))
	b.WriteString("Terminal=false\n")
	b.WriteString("NoDisplay=true\n")
	fmt.Fprintf(&b, "MimeType=x-scheme-handler/%s;\n", scheme)
	return b.String()
}

// quoteExec follows the freedesktop Exec key rules: arguments containing reserved
// characters are double-quoted with ", `, $ and \ escaped.
func quoteExec(s string) string {
	if !strings.ContainsAny(s, " \t\n\"'\\><~|&;$*?#()`") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
	return `"` + r.Replace(s) + `"`
}

func register(scheme, exe string) error {
	dataHome, err := getDataHome()
	if err != nil {
		return fmt.Errorf("failed to locate data directory: %w", err)
	}
	dir := filepath.Join(dataHome, "applications")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create applications directory: %w", err)
	}

	name := AppID + ".desktop"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(desktopEntry(scheme, exe)), 0644); err != nil {
		return fmt.Errorf("failed to write desktop entry: %w", err)
	}

	if err := runCommand("xdg-mime", "default", name, "x-scheme-handler/"+scheme); err != nil {
		return fmt.Errorf("xdg-mime failed: %w", err)
	}
	return nil
}
