package sched

import (
	"fmt"
	"sync"
)

// PageSize is the size in bytes of the single page backing each thread's
// control block and stack. The scheduler core treats page allocation as
// an external collaborator (§6): a bounded arena with a free-list,
// grounded on the bitmap-tracked size-class caches the teacher's arena
// allocator uses for fixed-size objects, narrowed here to one size class
// since §1 scopes dynamic TCB memory management out beyond one page.
const PageSize = 4096

// PageHeap hands out fixed-size zero-filled pages from a bounded pool and
// reclaims them, modeling alloc_page(zero_fill)/free_page(ptr).
type PageHeap struct {
	mu       sync.Mutex
	capacity int
	free     []int  // indices of unused slots, LIFO
	inUse    []bool // slot -> allocated
}

// NewPageHeap creates a heap with room for capacity pages.
func NewPageHeap(capacity int) *PageHeap {
	free := make([]int, capacity)
	for i := range free {
		free[i] = capacity - 1 - i
	}
	return &PageHeap{
		capacity: capacity,
		free:     free,
		inUse:    make([]bool, capacity),
	}
}

// Alloc returns a fresh page id, or ok=false if the heap is exhausted —
// the caller (thread creation) maps this to TID_ERROR.
func (p *PageHeap) Alloc() (slot int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return 0, false
	}
	slot = p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse[slot] = true
	return slot, true
}

// Free returns a page to the pool. Freeing an unallocated or
// already-freed slot is a programming error.
func (p *PageHeap) Free(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot < 0 || slot >= p.capacity || !p.inUse[slot] {
		panic(fmt.Sprintf("pageheap: double free or invalid slot %d", slot))
	}
	p.inUse[slot] = false
	p.free = append(p.free, slot)
}

// InUse reports how many pages are currently allocated.
func (p *PageHeap) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity - len(p.free)
}
