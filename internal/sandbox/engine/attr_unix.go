//go:build !linux && !windows

package engine

import "syscall"

func buildSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func processGroup(pid int) int { return pid }
