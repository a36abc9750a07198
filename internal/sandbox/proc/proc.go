// Package proc reads the host process table and per-process CPU counters.
package proc

import "errors"

var (
	// ErrNotFound is returned when a process has exited or never existed.
	ErrNotFound = errors.New("process not found")
	// ErrUnsupported is returned on platforms without a process table reader.
	ErrUnsupported = errors.New("process inspection is not supported on this platform")
)

// Identity distinguishes a live process from a later one that reused its pid.
type Identity struct {
	PID        int
	StartTicks uint64
}

// Stat is one row of the process table.
type Stat struct {
	PID        int
	PPID       int
	StartTicks uint64
	// CPUSeconds is the cumulative user+system time of the process itself.
	CPUSeconds float64
	// ChildCPUSeconds is the user+system time of children this process has
	// waited for. Zero where the platform does not report it.
	ChildCPUSeconds float64
	RSSBytes   uint64
	Zombie     bool
}

// Identity returns the pid/start-time pair of the row.
func (s Stat) Identity() Identity {
	return Identity{PID: s.PID, StartTicks: s.StartTicks}
}

// RSSMB returns resident memory in megabytes.
func (s Stat) RSSMB() float64 {
	return float64(s.RSSBytes) / (1024 * 1024)
}

// Source reads the process table.
type Source interface {
	// Snapshot lists every readable process. Rows that vanish while the
	// table is read are skipped.
	Snapshot() ([]Stat, error)
	// Stat reads a single process, returning ErrNotFound once it is gone.
	Stat(pid int) (Stat, error)
}

// Times is the platform-native CPU time query used when the process table
// reports implausible figures.
type Times interface {
	CPUTime(pid int) (float64, error)
}
