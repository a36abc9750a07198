// Package observer defines metrics hooks for supervised execution.
package observer

import "context"

// Recorder records execution metrics.
type Recorder interface {
	ObserveJob(ctx context.Context, outcome string, cpuSeconds, maxMemoryMB, wallSeconds, cost float64)
	ObserveCPUSource(ctx context.Context, source string)
	ObserveKill(ctx context.Context, reason string, err error)
	ObserveLedger(ctx context.Context, op string, err error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveJob(context.Context, string, float64, float64, float64, float64) {}
func (Nop) ObserveCPUSource(context.Context, string)                              {}
func (Nop) ObserveKill(context.Context, string, error)                            {}
func (Nop) ObserveLedger(context.Context, string, error)                          {}
