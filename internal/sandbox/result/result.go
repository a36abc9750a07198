// Package result defines job outcomes and the measurements reported for them.
package result

import "time"

// Outcome is the terminal state of a job.
type Outcome int

const (
	Success Outcome = iota
	CPUExceeded
	MemoryExceeded
	Timeout
	InsufficientCredits
	LaunchError
	RuntimeError
	Aborted
)

var outcomeNames = [...]string{
	Success:             "SUCCESS",
	CPUExceeded:         "CPU_EXCEEDED",
	MemoryExceeded:      "MEMORY_EXCEEDED",
	Timeout:             "TIMEOUT",
	InsufficientCredits: "NO_CREDITS",
	LaunchError:         "LAUNCH_ERROR",
	RuntimeError:        "RUNTIME_ERROR",
	Aborted:             "ABORTED",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "UNKNOWN"
	}
	return outcomeNames[o]
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Violation reports whether the outcome came from a breached limit.
func (o Outcome) Violation() bool {
	switch o {
	case CPUExceeded, MemoryExceeded, Timeout, InsufficientCredits:
		return true
	default:
		return false
	}
}

// Sample is one measurement of a job's process tree.
type Sample struct {
	CPUSeconds  float64   `json:"cpu_seconds"`
	MemoryMB    float64   `json:"memory_mb"`
	MaxMemoryMB float64   `json:"max_memory_mb"`
	WallSeconds float64   `json:"wall_seconds"`
	Timestamp   time.Time `json:"timestamp"`
	CPUSource   string    `json:"cpu_source"`
	Processes   int       `json:"processes"`
}

// RunResult is what the engine reports for one monitored run.
type RunResult struct {
	JobID    string
	Outcome  Outcome
	Normal   bool
	Sample   Sample
	ExitCode int
}

// Report is the final outcome of a job as seen by callers.
type Report struct {
	JobID     string   `json:"job_id"`
	Label     string   `json:"label"`
	Outcome   Outcome  `json:"outcome"`
	Sample    Sample   `json:"sample"`
	Cost      float64  `json:"cost"`
	ExitCode  int      `json:"exit_code"`
	Balance   *float64 `json:"balance,omitempty"`
	Remaining *float64 `json:"remaining_quota,omitempty"`
}
