//go:build windows

package proc

import (
	"errors"

	"golang.org/x/sys/windows"
)

// Kill terminates pid. A process that already exited is not an error.
func Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		if processGone(err) {
			return nil
		}
		return err
	}
	defer windows.CloseHandle(h)
	// TerminateProcess on a process that is already exiting reports access denied.
	if err := windows.TerminateProcess(h, 1); err != nil && !errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		return err
	}
	return nil
}

// KillGroup is a no-op on Windows; members are killed individually.
func KillGroup(pgid int) error {
	return nil
}
