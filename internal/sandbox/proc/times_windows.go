//go:build windows

package proc

import (
	"golang.org/x/sys/windows"
)

type windowsTimes struct{}

// NewTimes returns a reader backed by GetProcessTimes.
func NewTimes() Times {
	return windowsTimes{}
}

func (windowsTimes) CPUTime(pid int) (float64, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if processGone(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	defer windows.CloseHandle(h)

	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(h, &creation, &exit, &kernel, &user); err != nil {
		return 0, err
	}
	return filetimeSeconds(kernel) + filetimeSeconds(user), nil
}

// FILETIME counts 100ns intervals.
func filetimeTicks(ft windows.Filetime) uint64 {
	return uint64(ft.HighDateTime)<<32 | uint64(ft.LowDateTime)
}

func filetimeSeconds(ft windows.Filetime) float64 {
	return float64(filetimeTicks(ft)) * 1e-7
}
