package ledger

import (
	"time"

	"fms/internal/sandbox/result"
)

const (
	// CPURate is the charge per CPU second.
	CPURate = 1.0
	// MemoryRate is the charge per MB of peak memory held for one minute.
	MemoryRate = 0.1
)

// TimestampLayout formats usage record timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Cost converts measured usage into credits.
func Cost(cpuSeconds, maxMemoryMB, wallSeconds float64) float64 {
	return cpuSeconds*CPURate + maxMemoryMB*wallSeconds*MemoryRate/60
}

// CostOf prices a sample.
func CostOf(s result.Sample) float64 {
	return Cost(s.CPUSeconds, s.MaxMemoryMB, s.WallSeconds)
}

// UsageRecord is one entry of the usage log.
type UsageRecord struct {
	Timestamp     string  `json:"timestamp"`
	Binary        string  `json:"binary"`
	CPUTime       float64 `json:"cpu_time"`
	MemoryMax     float64 `json:"memory_max"`
	ExecutionTime float64 `json:"execution_time"`
	Cost          float64 `json:"cost"`
}

// NewUsageRecord builds a record for a finished job.
func NewUsageRecord(binary string, s result.Sample, cost float64, at time.Time) UsageRecord {
	return UsageRecord{
		Timestamp:     at.Format(TimestampLayout),
		Binary:        binary,
		CPUTime:       s.CPUSeconds,
		MemoryMax:     s.MaxMemoryMB,
		ExecutionTime: s.WallSeconds,
		Cost:          cost,
	}
}
