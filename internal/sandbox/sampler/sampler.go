// Package sampler measures cumulative CPU time and peak memory of a job's
// process tree.
package sampler

import (
	"time"

	"fms/internal/sandbox/proc"
	"fms/internal/sandbox/result"
	"fms/internal/sandbox/tracker"
)

const (
	// ImplausibleFloor is the primary CPU total below which fallbacks are tried.
	ImplausibleFloor = 0.1
	// MinElapsedForFallback is the wall time before a low primary reading is distrusted.
	MinElapsedForFallback = time.Second
	// MinUtilizationInterval is the shortest tick interval the utilization estimate accepts.
	MinUtilizationInterval = 100 * time.Millisecond
	// FloorCoreFraction is the share of one core charged by the last-resort estimate.
	FloorCoreFraction = 0.05
)

// Config holds the fallback tuning knobs.
type Config struct {
	ImplausibleFloor       float64       `yaml:"implausibleFloor"`
	MinElapsedForFallback  time.Duration `yaml:"minElapsedForFallback"`
	MinUtilizationInterval time.Duration `yaml:"minUtilizationInterval"`
	FloorCoreFraction      float64       `yaml:"floorCoreFraction"`
}

// DefaultConfig returns the package defaults.
func DefaultConfig() Config {
	return Config{
		ImplausibleFloor:       ImplausibleFloor,
		MinElapsedForFallback:  MinElapsedForFallback,
		MinUtilizationInterval: MinUtilizationInterval,
		FloorCoreFraction:      FloorCoreFraction,
	}
}

// Sampler tracks running CPU and memory totals for one job.
// It is used only by the monitoring loop.
type Sampler struct {
	cfg       Config
	primary   Strategy
	fallbacks []Strategy

	cpu     float64
	source  string
	peakMem float64
}

// New builds a sampler from a primary strategy and ordered fallbacks.
func New(cfg Config, primary Strategy, fallbacks ...Strategy) *Sampler {
	return &Sampler{cfg: cfg, primary: primary, fallbacks: fallbacks, source: primary.Name()}
}

// NewDefault builds the standard chain: process table, then native times
// when available, then utilization, then the wall-time floor.
func NewDefault(cfg Config, times proc.Times) *Sampler {
	fallbacks := make([]Strategy, 0, 3)
	if times != nil {
		fallbacks = append(fallbacks, NewNative(times))
	}
	fallbacks = append(fallbacks,
		NewUtilization(TableReader, cfg.MinUtilizationInterval),
		NewFloor(cfg.FloorCoreFraction),
	)
	return New(cfg, NewProcTable(), fallbacks...)
}

// Plausible reports whether a primary reading can be trusted after elapsed.
func (s *Sampler) Plausible(primary float64, elapsed time.Duration) bool {
	return primary >= s.cfg.ImplausibleFloor || elapsed < s.cfg.MinElapsedForFallback
}

// SampleMemory returns the resident memory of the set in MB and updates the peak.
func (s *Sampler) SampleMemory(set *tracker.ProcessSet) float64 {
	var mb float64
	if set != nil {
		for _, m := range set.Members {
			mb += m.RSSMB()
		}
	}
	if mb > s.peakMem {
		s.peakMem = mb
	}
	return mb
}

// SampleCPU returns the cumulative CPU seconds for the tick. The value
// never decreases across calls.
func (s *Sampler) SampleCPU(tick Tick) float64 {
	value := s.primary.Observe(tick)
	source := s.primary.Name()

	fallbackValues := make([]float64, len(s.fallbacks))
	for i, f := range s.fallbacks {
		fallbackValues[i] = f.Observe(tick)
	}

	if !s.Plausible(value, tick.Elapsed) {
		// The first positive fallback wins. While the total is still
		// implausible, later fallbacks act as a lower bound.
		chosen := -1
		for i, v := range fallbackValues {
			if v > 0 {
				value = v
				source = s.fallbacks[i].Name()
				chosen = i
				break
			}
		}
		if chosen >= 0 && value < s.cfg.ImplausibleFloor {
			for i := chosen + 1; i < len(fallbackValues); i++ {
				if fallbackValues[i] > value {
					value = fallbackValues[i]
					source = s.fallbacks[i].Name()
				}
			}
		}
	}

	if value > s.cpu {
		s.cpu = value
		s.source = source
	}
	return s.cpu
}

// Sample measures memory and CPU for one tick.
func (s *Sampler) Sample(set *tracker.ProcessSet, started, now time.Time) result.Sample {
	elapsed := now.Sub(started)
	mem := s.SampleMemory(set)
	cpu := s.SampleCPU(Tick{Set: set, Now: now, Elapsed: elapsed})
	return result.Sample{
		CPUSeconds:  cpu,
		MemoryMB:    mem,
		MaxMemoryMB: s.peakMem,
		WallSeconds: elapsed.Seconds(),
		Timestamp:   now,
		CPUSource:   s.source,
		Processes:   set.Len(),
	}
}

// RaiseCPU lifts the running total to cpu when it is higher, crediting
// source. It returns the resulting total.
func (s *Sampler) RaiseCPU(cpu float64, source string) float64 {
	if cpu > s.cpu {
		s.cpu = cpu
		s.source = source
	}
	return s.cpu
}

// PeakMemoryMB returns the running memory peak.
func (s *Sampler) PeakMemoryMB() float64 { return s.peakMem }

// CPUSeconds returns the running CPU total.
func (s *Sampler) CPUSeconds() float64 { return s.cpu }

// Source names the strategy that last raised the CPU total.
func (s *Sampler) Source() string { return s.source }
