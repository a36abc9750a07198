//go:build linux

package cgroup

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Create makes a fresh cgroup for jobID under root.
func Create(root, jobID string) (*Group, error) {
	if root == "" {
		return nil, fmt.Errorf("cgroup root is required")
	}
	dir := fmt.Sprintf("%s-%d", jobID, time.Now().UnixNano())
	path := filepath.Join(root, dir)
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create cgroup path: %w", err)
	}
	return &Group{path: path}, nil
}

// Add moves pid into the group; children forked afterwards inherit it.
func (g *Group) Add(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid")
	}
	return g.write("cgroup.procs", strconv.Itoa(pid))
}

// Pids lists the processes currently in the group.
func (g *Group) Pids() ([]int, error) {
	data, err := os.ReadFile(filepath.Join(g.path, "cgroup.procs"))
	if err != nil {
		return nil, err
	}
	return parsePids(data), nil
}

// Kill writes cgroup.kill, terminating every process in the group.
func (g *Group) Kill() error {
	killPath := filepath.Join(g.path, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

// OOMKilled reports whether the kernel OOM killer fired inside the group.
func (g *Group) OOMKilled() bool {
	data, err := os.ReadFile(filepath.Join(g.path, "memory.events"))
	if err != nil {
		return false
	}
	return eventCount(data, "oom_kill") > 0
}

// MemoryPeakMB returns memory.peak in megabytes, or 0 if unavailable.
func (g *Group) MemoryPeakMB() float64 {
	data, err := os.ReadFile(filepath.Join(g.path, "memory.peak"))
	if err != nil {
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return float64(v) / (1024 * 1024)
}

// Remove deletes the group directory. The group must be empty.
func (g *Group) Remove() error {
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (g *Group) write(name, value string) error {
	return os.WriteFile(filepath.Join(g.path, name), []byte(value), 0640)
}

func parsePids(data []byte) []int {
	var pids []int
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		pid, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

func eventCount(data []byte, key string) int64 {
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != key {
			continue
		}
		v, _ := strconv.ParseInt(fields[1], 10, 64)
		return v
	}
	return 0
}
