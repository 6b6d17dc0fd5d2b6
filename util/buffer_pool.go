package util

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

const (
	// smallest size class handed out by the pool (4 KiB)
	minPoolShift = 12
	// buffers above 64 MiB are never pooled
	maxPoolShift = 26
)

// BytePool provides size-classed pooling for pixel buffers to reduce allocations.
// Buffers are bucketed by the next power of two so a returned buffer can serve
// any later request that fits its class.
type BytePool struct {
	pools [maxPoolShift + 1]sync.Pool

	// Metrics
	hits        atomic.Int64
	misses      atomic.Int64
	outstanding atomic.Int64
}

var defaultBytePool = &BytePool{}

// DefaultBytePool returns the process wide pool used by heap allocations.
func DefaultBytePool() *BytePool {
	return defaultBytePool
}

func sizeClass(size int) int {
	if size <= 1<<minPoolShift {
		return minPoolShift
	}
	return bits.Len(uint(size - 1))
}

// Get retrieves a zeroed buffer of exactly size bytes from the pool or creates a new one
func (p *BytePool) Get(size int) []byte {
	p.outstanding.Add(1)
	if size <= 0 {
		return []byte{}
	}

	class := sizeClass(size)
	if class > maxPoolShift {
		p.misses.Add(1)
		return make([]byte, size)
	}

	if buf := p.pools[class].Get(); buf != nil {
		b := *(buf.(*[]byte))
		p.hits.Add(1)
		return b[:size]
	}

	p.misses.Add(1)
	b := make([]byte, size, 1<<class)
	return b
}

// Put returns a buffer to the pool after clearing it
func (p *BytePool) Put(buf []byte) {
	p.outstanding.Add(-1)
	c := cap(buf)
	if c == 0 {
		return
	}
	class := sizeClass(c)
	if class > maxPoolShift || c != 1<<class {
		// not one of ours, let the GC have it
		return
	}

	buf = buf[:c]
	clear(buf)
	p.pools[class].Put(&buf)
}

// GetMetrics returns pool usage statistics
func (p *BytePool) GetMetrics() (hits, misses, outstanding int64) {
	return p.hits.Load(), p.misses.Load(), p.outstanding.Load()
}
