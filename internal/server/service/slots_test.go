package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fms/pkg/errors"
)

func TestSlotsFull(t *testing.T) {
	slots := NewSlots(1, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, slots.Acquire(ctx))
	assert.Equal(t, 1, slots.InUse())

	err := slots.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.JobQueueFull))

	slots.Release()
	require.NoError(t, slots.Acquire(ctx))
	slots.Release()
	slots.Release()
	assert.Equal(t, 0, slots.InUse())
}

func TestSlotsWaitForRelease(t *testing.T) {
	slots := NewSlots(1, time.Second)
	ctx := context.Background()
	require.NoError(t, slots.Acquire(ctx))

	go func() {
		time.Sleep(20 * time.Millisecond)
		slots.Release()
	}()
	require.NoError(t, slots.Acquire(ctx))
}

func TestSlotsCanceled(t *testing.T) {
	slots := NewSlots(1, time.Second)
	require.NoError(t, slots.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, slots.Acquire(ctx), context.Canceled)
}
