// Package enforcer decides when a job has breached its limits and drives
// the tree-wide kill.
package enforcer

import (
	"time"

	"fms/internal/sandbox/result"
	"fms/internal/sandbox/spec"
)

// TimeoutMargin is how far ahead of the deadline a timeout fires.
const TimeoutMargin = 500 * time.Millisecond

// State is the enforcement state of a job.
type State int

const (
	Running State = iota
	Violated
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Violated:
		return "violated"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// CostFunc converts measured usage into credits.
type CostFunc func(cpuSeconds, maxMemoryMB, wallSeconds float64) float64

// Limits is everything a job is checked against.
type Limits struct {
	Quota         spec.Quota
	TimeoutMargin time.Duration
	// CreditCeiling, when set together with Cost, fails the job with
	// InsufficientCredits once its running cost exceeds the ceiling.
	CreditCeiling *float64
	Cost          CostFunc
}

// Enforcer is owned by the monitoring loop.
type Enforcer struct {
	limits  Limits
	term    *Terminator
	state   State
	outcome result.Outcome
}

// New creates an enforcer in the Running state.
func New(limits Limits, term *Terminator) *Enforcer {
	return &Enforcer{limits: limits, term: term, state: Running}
}

// Check evaluates memory, CPU, timeout and the credit ceiling in that order.
// It returns the first breached outcome.
func (e *Enforcer) Check(s result.Sample) (result.Outcome, bool) {
	q := e.limits.Quota
	if q.MemoryBounded() && s.MemoryMB > q.MemoryMB {
		return result.MemoryExceeded, true
	}
	if q.CPUBounded() && s.CPUSeconds > q.CPUSeconds {
		return result.CPUExceeded, true
	}
	if deadline := e.deadline(); deadline > 0 && s.WallSeconds >= deadline.Seconds() {
		return result.Timeout, true
	}
	if e.limits.CreditCeiling != nil && e.limits.Cost != nil {
		if e.limits.Cost(s.CPUSeconds, s.MaxMemoryMB, s.WallSeconds) > *e.limits.CreditCeiling {
			return result.InsufficientCredits, true
		}
	}
	return result.Success, false
}

func (e *Enforcer) deadline() time.Duration {
	timeout := e.limits.Quota.Timeout()
	if timeout <= 0 {
		return 0
	}
	if e.limits.TimeoutMargin > 0 && e.limits.TimeoutMargin < timeout {
		return timeout - e.limits.TimeoutMargin
	}
	return timeout
}

// Terminate records outcome and kills the tree through the shared
// terminator. Only the first call from Running has any effect.
func (e *Enforcer) Terminate(outcome result.Outcome) error {
	if e.state != Running {
		return nil
	}
	e.state = Violated
	e.outcome = outcome
	_, err := e.term.Fire()
	e.state = Terminated
	return err
}

// State returns the current state.
func (e *Enforcer) State() State { return e.state }

// Outcome returns the outcome fixed by Terminate.
func (e *Enforcer) Outcome() result.Outcome { return e.outcome }
