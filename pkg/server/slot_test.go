package server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotPoolBoundsHolders(t *testing.T) {
	var observed atomic.Int32
	pool := newSlotPool(3, func(busy int32) {
		for {
			peak := observed.Load()
			if busy <= peak || observed.CompareAndSwap(peak, busy) {
				return
			}
		}
	})
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := pool.Acquire(done)
			if !assert.NoError(t, err) {
				return
			}
			assert.LessOrEqual(t, pool.Busy(), int32(3))
			time.Sleep(2 * time.Millisecond)
			slot.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), pool.Busy())
	assert.LessOrEqual(t, observed.Load(), int32(3))
	assert.Equal(t, 3, pool.Capacity())
}

func TestSlotReleaseIsIdempotent(t *testing.T) {
	pool := newSlotPool(1, nil)
	done := make(chan struct{})

	slot, err := pool.Acquire(done)
	require.NoError(t, err)

	slot.Release()
	slot.Release()
	assert.Equal(t, int32(0), pool.Busy())

	// A double release must not free a second token.
	a, err := pool.Acquire(done)
	require.NoError(t, err)
	acquired := make(chan struct{})
	go func() {
		b, err := pool.Acquire(done)
		if err == nil {
			b.Release()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second slot acquired over capacity")
	case <-time.After(50 * time.Millisecond):
	}

	a.Release()
	<-acquired

	var nilSlot *WorkerSlot
	nilSlot.Release()
}

func TestSlotAcquireShutdown(t *testing.T) {
	pool := newSlotPool(1, nil)
	done := make(chan struct{})

	slot, err := pool.Acquire(done)
	require.NoError(t, err)
	defer slot.Release()

	errCh := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(done)
		errCh <- err
	}()

	close(done)
	assert.ErrorIs(t, <-errCh, errShuttingDown)

	// Shutdown wins even when a slot is free.
	slot.Release()
	_, err = pool.Acquire(done)
	assert.ErrorIs(t, err, errShuttingDown)
}
