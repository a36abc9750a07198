//go:build linux

package proc

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"github.com/prometheus/procfs"
)

// clock ticks per second used by /proc/<pid>/stat.
const userHZ = 100

type procfsSource struct {
	fs procfs.FS
}

// NewSource returns a process table reader backed by /proc.
func NewSource() (Source, error) {
	pfs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &procfsSource{fs: pfs}, nil
}

// NewTimes returns the scheduler-accounted CPU time reader (/proc/<pid>/schedstat).
func NewTimes() Times {
	pfs, err := procfs.NewDefaultFS()
	if err != nil {
		return unsupportedTimes{}
	}
	return &schedstatTimes{fs: pfs}
}

func (s *procfsSource) Snapshot() ([]Stat, error) {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	out := make([]Stat, 0, len(procs))
	for _, p := range procs {
		st, err := p.Stat()
		if err != nil {
			continue
		}
		out = append(out, fromProcStat(st))
	}
	return out, nil
}

func (s *procfsSource) Stat(pid int) (Stat, error) {
	p, err := s.fs.Proc(pid)
	if err != nil {
		return Stat{}, normalizeErr(err)
	}
	st, err := p.Stat()
	if err != nil {
		return Stat{}, normalizeErr(err)
	}
	return fromProcStat(st), nil
}

func fromProcStat(st procfs.ProcStat) Stat {
	rss := st.ResidentMemory()
	if rss < 0 {
		rss = 0
	}
	return Stat{
		PID:             st.PID,
		PPID:            st.PPID,
		StartTicks:      st.Starttime,
		CPUSeconds:      st.CPUTime(),
		ChildCPUSeconds: float64(st.CUTime+st.CSTime) / userHZ,
		RSSBytes:        uint64(rss),
		Zombie:          st.State == "Z",
	}
}

type schedstatTimes struct {
	fs procfs.FS
}

func (t *schedstatTimes) CPUTime(pid int) (float64, error) {
	p, err := t.fs.Proc(pid)
	if err != nil {
		return 0, normalizeErr(err)
	}
	ss, err := p.Schedstat()
	if err != nil {
		return 0, normalizeErr(err)
	}
	return float64(ss.RunningNanoseconds) / 1e9, nil
}

func normalizeErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ESRCH) {
		return ErrNotFound
	}
	return err
}
