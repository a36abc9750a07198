// Package cgroup manages an optional per-job cgroup v2 directory used to
// discover and terminate a job's processes.
package cgroup

import "errors"

// ErrUnsupported is returned on platforms without cgroup v2.
var ErrUnsupported = errors.New("cgroup v2 is not supported on this platform")

// Group is one job's cgroup directory.
type Group struct {
	path string
}

// Path returns the cgroup directory.
func (g *Group) Path() string {
	if g == nil {
		return ""
	}
	return g.path
}
