//go:build windows

package proc

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// GetExitCodeProcess reports this while the process runs.
const stillActive = 259

var (
	modpsapi                 = windows.NewLazySystemDLL("psapi.dll")
	procGetProcessMemoryInfo = modpsapi.NewProc("GetProcessMemoryInfo")
)

// processMemoryCounters mirrors PROCESS_MEMORY_COUNTERS.
type processMemoryCounters struct {
	CB                         uint32
	PageFaultCount             uint32
	PeakWorkingSetSize         uintptr
	WorkingSetSize             uintptr
	QuotaPeakPagedPoolUsage    uintptr
	QuotaPagedPoolUsage        uintptr
	QuotaPeakNonPagedPoolUsage uintptr
	QuotaNonPagedPoolUsage     uintptr
	PagefileUsage              uintptr
	PeakPagefileUsage          uintptr
}

type toolhelpSource struct{}

// NewSource returns a process table reader backed by a toolhelp snapshot
// for parent links and process handles for times and memory.
func NewSource() (Source, error) {
	return toolhelpSource{}, nil
}

func (toolhelpSource) Snapshot() ([]Stat, error) {
	var out []Stat
	err := walkProcesses(func(pid, ppid int) bool {
		st, err := readProcess(pid, ppid)
		if err == nil {
			out = append(out, st)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (toolhelpSource) Stat(pid int) (Stat, error) {
	ppid := -1
	err := walkProcesses(func(p, parent int) bool {
		if p == pid {
			ppid = parent
			return false
		}
		return true
	})
	if err != nil {
		return Stat{}, err
	}
	if ppid < 0 {
		return Stat{}, ErrNotFound
	}
	return readProcess(pid, ppid)
}

// walkProcesses calls fn for every entry of a process snapshot until fn
// returns false.
func walkProcesses(fn func(pid, ppid int) bool) error {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return fmt.Errorf("create process snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snap, &entry); err != nil {
		if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
			return nil
		}
		return fmt.Errorf("read process snapshot: %w", err)
	}
	for {
		if !fn(int(entry.ProcessID), int(entry.ParentProcessID)) {
			return nil
		}
		if err := windows.Process32Next(snap, &entry); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				return nil
			}
			return fmt.Errorf("read process snapshot: %w", err)
		}
	}
}

// readProcess fills a row from a process handle. Processes that cannot be
// opened are reported as ErrNotFound or the access error.
func readProcess(pid, ppid int) (Stat, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if processGone(err) {
			return Stat{}, ErrNotFound
		}
		return Stat{}, err
	}
	defer windows.CloseHandle(h)

	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(h, &creation, &exit, &kernel, &user); err != nil {
		return Stat{}, err
	}
	st := Stat{
		PID:        pid,
		PPID:       ppid,
		StartTicks: filetimeTicks(creation),
		CPUSeconds: filetimeSeconds(kernel) + filetimeSeconds(user),
	}

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err == nil && code != stillActive {
		st.Zombie = true
	}

	counters := processMemoryCounters{}
	counters.CB = uint32(unsafe.Sizeof(counters))
	r1, _, _ := procGetProcessMemoryInfo.Call(uintptr(h), uintptr(unsafe.Pointer(&counters)), uintptr(counters.CB))
	if r1 != 0 {
		st.RSSBytes = uint64(counters.WorkingSetSize)
	}
	return st, nil
}

// processGone reports whether an OpenProcess error means the pid no longer exists.
func processGone(err error) bool {
	return errors.Is(err, windows.ERROR_INVALID_PARAMETER)
}
