// Package bufpool provides size-classed read buffers shared by connection
// handlers.
//
// Buffers come in three classes (4 KiB, 64 KiB, 1 MiB). Requests above the
// largest class are allocated directly and never pooled.
package bufpool

import (
	"sync"
)

const (
	SmallSize  = 4 << 10
	MediumSize = 64 << 10
	LargeSize  = 1 << 20
)

type class struct {
	size int
	pool sync.Pool
}

func newClass(size int) *class {
	c := &class{size: size}
	c.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return c
}

var classes = []*class{
	newClass(SmallSize),
	newClass(MediumSize),
	newClass(LargeSize),
}

// Get returns a buffer of length size. Its capacity is the smallest class
// that fits, so it can be handed back with Put.
func Get(size int) []byte {
	for _, c := range classes {
		if size <= c.size {
			bufPtr := c.pool.Get().(*[]byte)
			return (*bufPtr)[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its class. Buffers not obtained from Get are dropped.
func Put(buf []byte) {
	if buf == nil {
		return
	}

	for _, c := range classes {
		if cap(buf) == c.size {
			full := buf[:c.size]
			c.pool.Put(&full)
			return
		}
	}
}
