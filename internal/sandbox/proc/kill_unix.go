//go:build !windows

package proc

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Kill sends SIGKILL to pid. A process that already exited is not an error.
func Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// KillGroup sends SIGKILL to the process group led by pgid.
func KillGroup(pgid int) error {
	if pgid <= 0 {
		return nil
	}
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
