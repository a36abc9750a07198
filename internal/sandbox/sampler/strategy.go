package sampler

import (
	"time"

	"fms/internal/sandbox/proc"
	"fms/internal/sandbox/tracker"
)

// Tick is the input every strategy folds in once per monitoring tick.
type Tick struct {
	Set     *tracker.ProcessSet
	Now     time.Time
	Elapsed time.Duration
}

// Strategy produces a cumulative CPU-seconds estimate for a job.
// Observe is called on every tick so per-process state stays current
// even while the strategy's value is not the one reported.
type Strategy interface {
	Name() string
	Observe(tick Tick) float64
}

// Strategy names reported in samples.
const (
	SourceProcTable   = "proctable"
	SourceNative      = "native"
	SourceUtilization = "utilization"
	SourceFloor       = "floor"
	// SourceExit is the usage reported by the operating system when the
	// root is reaped.
	SourceExit = "exit"
)

// deltaBook keeps a first-seen baseline and the latest reading per identity.
// Identities that disappear keep their last delta.
type deltaBook struct {
	base map[proc.Identity]float64
	last map[proc.Identity]float64
}

func newDeltaBook() *deltaBook {
	return &deltaBook{
		base: make(map[proc.Identity]float64),
		last: make(map[proc.Identity]float64),
	}
}

func (b *deltaBook) observe(id proc.Identity, value float64) {
	if _, ok := b.base[id]; !ok {
		b.base[id] = value
	}
	if value > b.last[id] {
		b.last[id] = value
	}
}

func (b *deltaBook) total() float64 {
	var sum float64
	for id, latest := range b.last {
		if d := latest - b.base[id]; d > 0 {
			sum += d
		}
	}
	return sum
}

func (b *deltaBook) forget(id proc.Identity) {
	delete(b.base, id)
	delete(b.last, id)
}

// treeBook accounts a tree's CPU from two counters per identity: the
// process's own time and the time of the children it has waited for.
// The second one charges workers that start and exit between two ticks.
//
// A tracked member that disappears while its tracked parent is still
// present was reaped by that parent, whose children counter now carries
// its whole lifetime; the member's own entries are dropped then.
type treeBook struct {
	own     *deltaBook
	reaped  *deltaBook
	parents map[proc.Identity]int
}

func newTreeBook() *treeBook {
	return &treeBook{
		own:     newDeltaBook(),
		reaped:  newDeltaBook(),
		parents: make(map[proc.Identity]int),
	}
}

func (b *treeBook) observe(set *tracker.ProcessSet, own func(m tracker.Member) (float64, bool)) float64 {
	present := make(map[int]proc.Identity, set.Len())
	if set != nil {
		for _, m := range set.Members {
			id := m.Identity()
			present[m.PID] = id
			if v, ok := own(m); ok {
				b.own.observe(id, v)
			}
			b.reaped.observe(id, m.ChildCPUSeconds)
			b.parents[id] = m.PPID
		}
	}
	for id, ppid := range b.parents {
		if cur, ok := present[id.PID]; ok && cur == id {
			continue
		}
		delete(b.parents, id)
		if parent, ok := present[ppid]; ok && parent.StartTicks <= id.StartTicks {
			b.own.forget(id)
			b.reaped.forget(id)
		}
	}
	return b.own.total() + b.reaped.total()
}

// ProcTable sums user+system time deltas read from the process table,
// including the time of reaped children.
type ProcTable struct {
	book *treeBook
}

func NewProcTable() *ProcTable {
	return &ProcTable{book: newTreeBook()}
}

func (s *ProcTable) Name() string { return SourceProcTable }

func (s *ProcTable) Observe(tick Tick) float64 {
	return s.book.observe(tick.Set, TableReader)
}

// Native sums deltas of the platform-native CPU time per process. Reaped
// children are charged from the process table counters.
type Native struct {
	times proc.Times
	book  *treeBook
}

func NewNative(times proc.Times) *Native {
	return &Native{times: times, book: newTreeBook()}
}

func (s *Native) Name() string { return SourceNative }

func (s *Native) Observe(tick Tick) float64 {
	return s.book.observe(tick.Set, func(m tracker.Member) (float64, bool) {
		v, err := s.times.CPUTime(m.PID)
		return v, err == nil
	})
}

// Reader returns the cumulative CPU seconds of one member.
type Reader func(m tracker.Member) (float64, bool)

// TableReader reads the CPU time already carried by the snapshot.
func TableReader(m tracker.Member) (float64, bool) {
	return m.CPUSeconds, true
}

type utilPoint struct {
	cpu float64
	at  time.Time
}

// Utilization accumulates the tree's utilization rate multiplied by the
// interval between ticks. A tick contributes only when the interval exceeds
// the configured minimum; shorter ticks are folded into the next one.
type Utilization struct {
	read        Reader
	minInterval time.Duration

	prev     map[proc.Identity]utilPoint
	lastTick time.Time
	estimate float64
}

func NewUtilization(read Reader, minInterval time.Duration) *Utilization {
	if read == nil {
		read = TableReader
	}
	return &Utilization{
		read:        read,
		minInterval: minInterval,
		prev:        make(map[proc.Identity]utilPoint),
	}
}

func (s *Utilization) Name() string { return SourceUtilization }

func (s *Utilization) Observe(tick Tick) float64 {
	if s.lastTick.IsZero() {
		s.lastTick = tick.Now
		s.remember(tick)
		return s.estimate
	}
	interval := tick.Now.Sub(s.lastTick)
	if interval <= s.minInterval {
		return s.estimate
	}

	var rate float64
	if tick.Set != nil {
		for _, m := range tick.Set.Members {
			p, ok := s.prev[m.Identity()]
			if !ok {
				continue
			}
			cpu, ok := s.read(m)
			if !ok {
				continue
			}
			wall := tick.Now.Sub(p.at).Seconds()
			if wall <= 0 || cpu <= p.cpu {
				continue
			}
			rate += (cpu - p.cpu) / wall
		}
	}
	s.estimate += rate * interval.Seconds()
	s.lastTick = tick.Now
	s.remember(tick)
	return s.estimate
}

func (s *Utilization) remember(tick Tick) {
	if tick.Set == nil {
		return
	}
	for _, m := range tick.Set.Members {
		cpu, ok := s.read(m)
		if !ok {
			continue
		}
		s.prev[m.Identity()] = utilPoint{cpu: cpu, at: tick.Now}
	}
}

// Floor charges a fixed fraction of one core for the elapsed wall time.
type Floor struct {
	fraction float64
}

func NewFloor(fraction float64) *Floor {
	return &Floor{fraction: fraction}
}

func (s *Floor) Name() string { return SourceFloor }

func (s *Floor) Observe(tick Tick) float64 {
	return tick.Elapsed.Seconds() * s.fraction
}
