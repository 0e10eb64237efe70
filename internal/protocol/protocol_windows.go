//go:build windows

package protocol

import (
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// register writes HKCU\Software\Classes\<scheme>, which needs no elevation.
func register(scheme, exe string) error {
	base := `Software\Classes\` + scheme

	key, _, err := registry.CreateKey(registry.CURRENT_USER, base, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("failed to create scheme key: %w", err)
	}
	defer key.Close()
	if err := key.SetStringValue("", "URL:"+AppID); err != nil {
		return fmt.Errorf("failed to set scheme description: %w", err)
	}
	if err := key.SetStringValue("URL Protocol", ""); err != nil {
		return fmt.Errorf("failed to mark url protocol: %w", err)
	}

	cmd, _, err := registry.CreateKey(registry.CURRENT_USER, base+`\shell\open\command`, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("failed to create open command key: %w", err)
	}
	defer cmd.Close()
	if err := cmd.SetStringValue("", fmt.Sprintf(`"%s" "%%1"`, exe)); err != nil {
		return fmt.Errorf("failed to set open command: %w", err)
	}
	return nil
}
