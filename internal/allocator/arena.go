package allocator

import (
	"sync"

	serr "github.com/metrosim/substrate/internal/errors"
)

// ArenaAllocator is a bump allocator over a fixed buffer. Individual frees
// are no-ops; memory is reclaimed by Reset. Used for short-lived scratch
// allocations where per-allocation bookkeeping would dominate.
type ArenaAllocator struct {
	config         *Config
	buffer         []byte
	current        uintptr
	allocations    uint64
	totalAllocated uintptr
	peakUsage      uintptr
	mu             sync.Mutex
}

// NewArenaAllocator creates an arena of the given size.
func NewArenaAllocator(size uintptr, options ...Option) (*ArenaAllocator, error) {
	if size == 0 {
		return nil, serr.InvalidImage("arena size must be greater than 0")
	}

	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}

	return &ArenaAllocator{
		config: config,
		buffer: make([]byte, size),
	}, nil
}

// Alloc bumps the arena cursor and returns the allocated slice.
func (aa *ArenaAllocator) Alloc(size uintptr) ([]byte, error) {
	if size == 0 {
		return nil, serr.InvalidImage("zero size allocation")
	}

	alignedSize := alignUp(size, aa.config.AlignmentSize)

	aa.mu.Lock()
	defer aa.mu.Unlock()

	if aa.current+alignedSize > uintptr(len(aa.buffer)) {
		return nil, serr.OutOfMemory(alignedSize, uintptr(len(aa.buffer))-aa.current)
	}

	buf := aa.buffer[aa.current : aa.current+size : aa.current+alignedSize]

	aa.current += alignedSize
	aa.allocations++
	aa.totalAllocated += alignedSize

	if aa.current > aa.peakUsage {
		aa.peakUsage = aa.current
	}

	return buf, nil
}

// Free is a no-op; arenas only reclaim memory on Reset.
func (aa *ArenaAllocator) Free(buf []byte) {}

// TotalAllocated returns total allocated bytes.
func (aa *ArenaAllocator) TotalAllocated() uintptr {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	return aa.totalAllocated
}

// TotalFreed always returns 0; arenas do not track individual frees.
func (aa *ArenaAllocator) TotalFreed() uintptr { return 0 }

// ActiveAllocations returns the number of allocations since the last Reset.
func (aa *ArenaAllocator) ActiveAllocations() int {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	return int(aa.allocations)
}

// Available returns the remaining space in the arena.
func (aa *ArenaAllocator) Available() uintptr {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	return uintptr(len(aa.buffer)) - aa.current
}

// Used returns the amount of used space in the arena.
func (aa *ArenaAllocator) Used() uintptr {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	return aa.current
}

// Stats returns allocation statistics.
func (aa *ArenaAllocator) Stats() Stats {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	return Stats{
		TotalAllocated:    aa.totalAllocated,
		ActiveAllocations: int(aa.allocations),
		AllocationCount:   aa.allocations,
		BytesInUse:        aa.current,
	}
}

// Reset rewinds the arena, invalidating all outstanding allocations.
func (aa *ArenaAllocator) Reset() {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	aa.current = 0
	aa.allocations = 0
	aa.totalAllocated = 0
}
