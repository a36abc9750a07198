package enforcer

import "sync/atomic"

// Terminator runs a kill function at most once, whichever of the
// monitoring loop or the abort listener gets there first.
type Terminator struct {
	fired atomic.Bool
	kill  func() error
	done  chan struct{}
	err   error
}

// NewTerminator wraps kill.
func NewTerminator(kill func() error) *Terminator {
	return &Terminator{kill: kill, done: make(chan struct{})}
}

// Fire runs kill if no caller has yet. Losing callers wait for the winner
// and receive its error. The bool reports whether this call ran kill.
func (t *Terminator) Fire() (bool, error) {
	if !t.fired.CompareAndSwap(false, true) {
		<-t.done
		return false, t.err
	}
	t.err = t.kill()
	close(t.done)
	return true, t.err
}

// Fired reports whether Fire has been called.
func (t *Terminator) Fired() bool {
	return t.fired.Load()
}
