// Package tracker discovers and terminates the process tree of a job.
package tracker

import (
	"context"
	"errors"
	"fmt"

	"fms/internal/sandbox/proc"
)

// Member is one process of a job's tree as seen on the latest refresh.
type Member struct {
	proc.Stat
	// New is set the first tick this identity is observed.
	New bool
}

// ProcessSet is the root followed by its descendants in discovery order.
type ProcessSet struct {
	Members []Member
}

// Len returns the number of members.
func (s *ProcessSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Members)
}

// Contains reports whether pid is a member.
func (s *ProcessSet) Contains(pid int) bool {
	if s == nil {
		return false
	}
	for _, m := range s.Members {
		if m.PID == pid {
			return true
		}
	}
	return false
}

// Membership is an extra source of job pids, such as a cgroup.
type Membership interface {
	Pids() ([]int, error)
	Kill() error
}

// Killer delivers termination signals.
type Killer interface {
	Kill(pid int) error
	KillGroup(pgid int) error
}

type signalKiller struct{}

func (signalKiller) Kill(pid int) error       { return proc.Kill(pid) }
func (signalKiller) KillGroup(pgid int) error { return proc.KillGroup(pgid) }

// Config controls optional discovery and termination paths.
type Config struct {
	// ProcessGroup is signalled after the members; zero skips it.
	ProcessGroup int
	Membership   Membership
	Killer       Killer
}

// Tracker follows the tree rooted at one pid.
type Tracker struct {
	src        proc.Source
	root       int
	rootStart  uint64
	pgid       int
	membership Membership
	killer     Killer

	seen  map[proc.Identity]struct{}
	known []proc.Identity
}

// New creates a tracker for the tree rooted at rootPID.
func New(src proc.Source, rootPID int, cfg Config) *Tracker {
	killer := cfg.Killer
	if killer == nil {
		killer = signalKiller{}
	}
	return &Tracker{
		src:        src,
		root:       rootPID,
		pgid:       cfg.ProcessGroup,
		membership: cfg.Membership,
		killer:     killer,
		seen:       make(map[proc.Identity]struct{}),
	}
}

// RootPID returns the pid the tracker was created for.
func (t *Tracker) RootPID() int { return t.root }

// Refresh takes one process-table snapshot and rebuilds the set.
//
// Discovery walks ppid links from the root, then from members tracked on
// earlier ticks that are still alive (their parent may have exited), then
// from membership pids. A candidate child must not predate its parent, and
// a tracked identity only matches when its start time is unchanged.
func (t *Tracker) Refresh(ctx context.Context) (*ProcessSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := t.src.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot process table: %w", err)
	}

	byPID := make(map[int]proc.Stat, len(rows))
	children := make(map[int][]int)
	for _, r := range rows {
		byPID[r.PID] = r
		children[r.PPID] = append(children[r.PPID], r.PID)
	}

	set := &ProcessSet{}
	included := make(map[int]bool)
	add := func(st proc.Stat) {
		id := st.Identity()
		_, old := t.seen[id]
		if !old {
			t.seen[id] = struct{}{}
		}
		included[st.PID] = true
		set.Members = append(set.Members, Member{Stat: st, New: !old})
	}
	walk := func(start int) {
		queue := []int{start}
		for len(queue) > 0 {
			parent := byPID[queue[0]]
			queue = queue[1:]
			for _, pid := range children[parent.PID] {
				if included[pid] {
					continue
				}
				child := byPID[pid]
				if child.StartTicks < parent.StartTicks {
					continue
				}
				add(child)
				queue = append(queue, pid)
			}
		}
	}

	if root, ok := byPID[t.root]; ok && (t.rootStart == 0 || root.StartTicks == t.rootStart) {
		t.rootStart = root.StartTicks
		add(root)
		walk(root.PID)
	}

	for _, id := range t.known {
		if included[id.PID] {
			continue
		}
		st, ok := byPID[id.PID]
		if !ok || st.StartTicks != id.StartTicks {
			continue
		}
		add(st)
		walk(st.PID)
	}

	if t.membership != nil {
		pids, err := t.membership.Pids()
		if err == nil {
			for _, pid := range pids {
				if included[pid] {
					continue
				}
				st, ok := byPID[pid]
				if !ok {
					continue
				}
				add(st)
				walk(st.PID)
			}
		}
	}

	t.known = t.known[:0]
	for _, m := range set.Members {
		t.known = append(t.known, m.Identity())
	}
	return set, nil
}

// KillAll terminates every member, children first, then the process group
// and the membership source. Members that already exited are skipped and a
// pid whose start time changed is never signalled. Safe to call repeatedly.
func (t *Tracker) KillAll(set *ProcessSet) error {
	var errs []error
	if set != nil {
		for i := len(set.Members) - 1; i >= 0; i-- {
			m := set.Members[i]
			cur, err := t.src.Stat(m.PID)
			if errors.Is(err, proc.ErrNotFound) {
				continue
			}
			if err == nil && cur.StartTicks != m.StartTicks {
				continue
			}
			if err := t.killer.Kill(m.PID); err != nil {
				errs = append(errs, fmt.Errorf("kill pid %d: %w", m.PID, err))
			}
		}
	}
	if t.pgid > 0 {
		if err := t.killer.KillGroup(t.pgid); err != nil {
			errs = append(errs, fmt.Errorf("kill process group %d: %w", t.pgid, err))
		}
	}
	if t.membership != nil {
		if err := t.membership.Kill(); err != nil {
			errs = append(errs, fmt.Errorf("kill membership: %w", err))
		}
	}
	return errors.Join(errs...)
}
