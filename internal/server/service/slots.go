// Package service holds API-side job admission and caller authentication.
package service

import (
	"context"
	"time"

	"fms/pkg/errors"
)

// Slots caps the number of jobs the API runs at once.
type Slots struct {
	sem  chan struct{}
	wait time.Duration
}

// NewSlots creates a limiter of size slots; callers wait up to wait for one.
func NewSlots(size int, wait time.Duration) *Slots {
	if size <= 0 {
		size = 1
	}
	return &Slots{sem: make(chan struct{}, size), wait: wait}
}

// Acquire takes a slot, failing with JobQueueFull after the wait ceiling.
func (s *Slots) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	default:
	}
	timer := time.NewTimer(s.wait)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New(errors.JobQueueFull)
	}
}

// Release frees a slot.
func (s *Slots) Release() {
	select {
	case <-s.sem:
	default:
	}
}

// InUse returns the number of taken slots.
func (s *Slots) InUse() int {
	return len(s.sem)
}
