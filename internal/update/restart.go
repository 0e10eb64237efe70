package update

import (
	"fmt"
	"os"
	"os/exec"
)

// Relaunch returns a Restart function that starts a fresh copy of the
// executable with args and then calls quit so the current process exits.
// The new process sees RelaunchEnv and waits for the single-instance lock
// instead of forwarding its arguments to the exiting process.
func Relaunch(args []string, quit func()) func() error {
	return func() error {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate executable: %w", err)
		}
		cmd := exec.Command(exe, args...)
		cmd.Env = append(os.Environ(), RelaunchEnv+"=1")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to relaunch: %w", err)
		}
		_ = cmd.Process.Release()
		if quit != nil {
			quit()
		}
		return nil
	}
}

// RelaunchEnv is set in the environment of a process started by Relaunch.
const RelaunchEnv = "HOPEWELL_RELAUNCHED"
