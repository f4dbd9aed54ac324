package pool

import (
	"sync/atomic"
)

// ServerID identifies a Server inside a pool.
type ServerID uint64

// IDAllocator hands out monotonically increasing server ids.
type IDAllocator struct {
	next atomic.Uint64
}

// NewIDAllocator returns an allocator whose first id is first.
func NewIDAllocator(first ServerID) *IDAllocator {
	a := &IDAllocator{}
	a.next.Store(uint64(first))
	return a
}

// Next returns a fresh id.
func (a *IDAllocator) Next() ServerID {
	return ServerID(a.next.Add(1) - 1)
}
