package testcommon

import (
	"errors"
	"sync"
)

// CountingAllocator is a custom pixel allocator that records every call so
// tests can check that each allocation is freed exactly once.
type CountingAllocator struct {
	mu sync.Mutex

	Allocs int
	Frees  int

	// FreedSizes records the size passed to each Free
	FreedSizes []int

	// Fail makes the next Alloc return an error
	Fail bool

	live map[int]bool
	next int
}

func NewCountingAllocator() *CountingAllocator {
	return &CountingAllocator{live: make(map[int]bool)}
}

func (ca *CountingAllocator) Alloc(size int) ([]byte, any, error) {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	if ca.Fail {
		ca.Fail = false
		return nil, nil, errors.New("counting allocator told to fail")
	}
	ca.Allocs++
	ca.next++
	ca.live[ca.next] = true
	return make([]byte, size), ca.next, nil
}

func (ca *CountingAllocator) Free(mem []byte, ctx any, size int) {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	id, _ := ctx.(int)
	if !ca.live[id] {
		panic("free of unknown or already freed allocation")
	}
	delete(ca.live, id)
	ca.Frees++
	ca.FreedSizes = append(ca.FreedSizes, size)
}

// Outstanding is the number of allocations not yet freed.
func (ca *CountingAllocator) Outstanding() int {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	return len(ca.live)
}
