// Package spec defines the job description and the resource envelope it runs under.
package spec

import (
	"io"
	"time"
)

// Quota describes the limits enforced for one job.
// Zero or negative values mean the limit is not applied.
type Quota struct {
	CPUSeconds     float64 `json:"cpu_seconds" yaml:"cpuSeconds"`
	MemoryMB       float64 `json:"memory_mb" yaml:"memoryMB"`
	TimeoutSeconds float64 `json:"timeout_seconds" yaml:"timeoutSeconds"`
}

// CPUBounded reports whether a CPU quota is set.
func (q Quota) CPUBounded() bool { return q.CPUSeconds > 0 }

// MemoryBounded reports whether a memory ceiling is set.
func (q Quota) MemoryBounded() bool { return q.MemoryMB > 0 }

// Timeout returns the wall-clock limit, or zero when none is set.
func (q Quota) Timeout() time.Duration {
	if q.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(q.TimeoutSeconds * float64(time.Second))
}

// RunSpec describes one supervised job: target, limits and ceilings.
type RunSpec struct {
	JobID string
	Label string
	Path  string
	Args  []string
	Env   []string
	Dir   string
	Quota Quota
	// Standard streams of the target; nil streams are connected to the null device.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// CreditCeiling stops the job once its running cost exceeds it; nil disables the check.
	CreditCeiling *float64
	// Cost converts a running sample into credits for the ceiling check.
	Cost func(cpuSeconds, maxMemoryMB, wallSeconds float64) float64
}

// Job is one supervised execution, owned by the monitoring loop.
type Job struct {
	ID        string
	RootPID   int
	StartedAt time.Time
	Quota     Quota
	Label     string
}
