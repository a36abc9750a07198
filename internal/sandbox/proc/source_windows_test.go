//go:build windows

package proc

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func TestToolhelpSourceReadsSelf(t *testing.T) {
	src, err := NewSource()
	require.NoError(t, err)

	st, err := src.Stat(os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, os.Getppid(), st.PPID)
	assert.NotZero(t, st.StartTicks)
	assert.NotZero(t, st.RSSBytes)
	assert.False(t, st.Zombie)

	rows, err := src.Snapshot()
	require.NoError(t, err)
	found := false
	for _, r := range rows {
		if r.PID == os.Getpid() {
			found = true
		}
	}
	assert.True(t, found)
}

func TestToolhelpSourceMissingPid(t *testing.T) {
	src, err := NewSource()
	require.NoError(t, err)

	_, err = src.Stat(1 << 30)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessGone(t *testing.T) {
	assert.True(t, processGone(windows.ERROR_INVALID_PARAMETER))
	assert.False(t, processGone(windows.ERROR_ACCESS_DENIED))
}

func TestKillChild(t *testing.T) {
	cmd := exec.Command("ping", "-n", "30", "127.0.0.1")
	require.NoError(t, cmd.Start())

	require.NoError(t, Kill(cmd.Process.Pid))
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("child was not terminated")
	}
	assert.NoError(t, Kill(1<<30))
}
