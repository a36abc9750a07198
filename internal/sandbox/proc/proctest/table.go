// Package proctest provides an in-memory process table for tests.
package proctest

import (
	"errors"
	"sync"

	"fms/internal/sandbox/proc"
)

// Table is a mutable fake process table implementing proc.Source and proc.Times.
type Table struct {
	mu      sync.Mutex
	rows    map[int]proc.Stat
	order   []int
	native  map[int]float64
	listErr error
}

// New creates an empty table.
func New() *Table {
	return &Table{
		rows:   make(map[int]proc.Stat),
		native: make(map[int]float64),
	}
}

// Put inserts or replaces a row.
func (t *Table) Put(st proc.Stat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[st.PID]; !ok {
		t.order = append(t.order, st.PID)
	}
	t.rows[st.PID] = st
}

// Update mutates an existing row in place. It is a no-op for unknown pids.
func (t *Table) Update(pid int, fn func(*proc.Stat)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.rows[pid]
	if !ok {
		return
	}
	fn(&st)
	t.rows[pid] = st
}

// Remove deletes a row, as if the process was reaped.
func (t *Table) Remove(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, pid)
	delete(t.native, pid)
	for i, p := range t.order {
		if p == pid {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// SetNative sets the value returned by CPUTime for pid.
func (t *Table) SetNative(pid int, seconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.native[pid] = seconds
}

// FailSnapshots makes Snapshot return err until cleared with nil.
func (t *Table) FailSnapshots(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listErr = err
}

func (t *Table) Snapshot() ([]proc.Stat, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listErr != nil {
		return nil, t.listErr
	}
	out := make([]proc.Stat, 0, len(t.order))
	for _, pid := range t.order {
		out = append(out, t.rows[pid])
	}
	return out, nil
}

func (t *Table) Stat(pid int) (proc.Stat, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.rows[pid]
	if !ok {
		return proc.Stat{}, proc.ErrNotFound
	}
	return st, nil
}

func (t *Table) CPUTime(pid int) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[pid]; !ok {
		return 0, proc.ErrNotFound
	}
	v, ok := t.native[pid]
	if !ok {
		return 0, errors.New("no native reading")
	}
	return v, nil
}
