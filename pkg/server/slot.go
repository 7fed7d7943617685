package server

import (
	"errors"
	"sync"
	"sync/atomic"
)

var errShuttingDown = errors.New("server shutting down")

// WorkerSlot is a capacity token bound to one connection for its lifetime.
// Release returns it to the pool and is safe to call more than once.
type WorkerSlot struct {
	once    sync.Once
	release func()
}

func (s *WorkerSlot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// slotPool hands out at most capacity WorkerSlots at a time.
type slotPool struct {
	sem      chan struct{}
	busy     atomic.Int32
	onChange func(busy int32)
}

func newSlotPool(capacity int, onChange func(int32)) *slotPool {
	if onChange == nil {
		onChange = func(int32) {}
	}
	return &slotPool{
		sem:      make(chan struct{}, capacity),
		onChange: onChange,
	}
}

// Acquire blocks until a slot is free or done is closed.
func (p *slotPool) Acquire(done <-chan struct{}) (*WorkerSlot, error) {
	// Shutdown wins over a free slot.
	select {
	case <-done:
		return nil, errShuttingDown
	default:
	}

	select {
	case p.sem <- struct{}{}:
	case <-done:
		return nil, errShuttingDown
	}

	p.onChange(p.busy.Add(1))

	return &WorkerSlot{release: func() {
		<-p.sem
		p.onChange(p.busy.Add(-1))
	}}, nil
}

// Busy returns the number of slots currently held.
func (p *slotPool) Busy() int32 {
	return p.busy.Load()
}

// Capacity returns the maximum number of slots.
func (p *slotPool) Capacity() int {
	return cap(p.sem)
}
