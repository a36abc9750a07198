//go:build !linux

package cgroup

// Create is only supported on linux.
func Create(root, jobID string) (*Group, error) {
	return nil, ErrUnsupported
}

func (g *Group) Add(pid int) error { return ErrUnsupported }

func (g *Group) Pids() ([]int, error) { return nil, ErrUnsupported }

func (g *Group) Kill() error { return ErrUnsupported }

func (g *Group) OOMKilled() bool { return false }

func (g *Group) MemoryPeakMB() float64 { return 0 }

func (g *Group) Remove() error { return nil }
