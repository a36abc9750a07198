//go:build linux

package tracker

import (
	"context"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fms/internal/sandbox/proc"
)

func TestKillAllRealTree(t *testing.T) {
	src, err := proc.NewSource()
	require.NoError(t, err)

	cmd := exec.Command("/bin/sh", "-c", "sleep 30 & sleep 30 & wait")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	tr := New(src, cmd.Process.Pid, Config{ProcessGroup: cmd.Process.Pid})
	var set *ProcessSet
	require.Eventually(t, func() bool {
		set, err = tr.Refresh(context.Background())
		return err == nil && set.Len() >= 3
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, tr.KillAll(set))
	require.NoError(t, tr.KillAll(set))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("root did not exit after KillAll")
	}
	for _, m := range set.Members[1:] {
		assert.Eventually(t, func() bool {
			st, err := src.Stat(m.PID)
			return err != nil || st.StartTicks != m.StartTicks || st.Zombie
		}, 5*time.Second, 20*time.Millisecond)
	}
}
