//go:build windows

package accounts

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// lockFile blocks until it holds an exclusive LockFileEx lock on f.
func lockFile(f *os.File) (unlock func(), err error) {
	h := windows.Handle(f.Fd())
	if err := windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, &windows.Overlapped{}); err != nil {
		return nil, fmt.Errorf("failed to lock account store: %w", err)
	}
	return func() { _ = windows.UnlockFileEx(h, 0, 1, 0, &windows.Overlapped{}) }, nil
}
