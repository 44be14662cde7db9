// Package allocator provides the raw memory layer for the substrate.
// It implements growable, handle-addressed regions with stable byte
// ownership plus an arena allocator for short-lived scratch memory.
package allocator

import (
	"sync"
	"sync/atomic"

	serr "github.com/metrosim/substrate/internal/errors"
)

// Allocator defines the interface for byte-slice allocators.
type Allocator interface {
	Alloc(size uintptr) ([]byte, error)
	Free(buf []byte)
	TotalAllocated() uintptr
	TotalFreed() uintptr
	ActiveAllocations() int
	Stats() Stats
	Reset()
}

// Stats provides allocation statistics.
type Stats struct {
	TotalAllocated    uintptr
	TotalFreed        uintptr
	ActiveAllocations int
	PeakAllocations   int
	AllocationCount   uint64
	FreeCount         uint64
	BytesInUse        uintptr
}

// Config controls allocator behavior.
type Config struct {
	AlignmentSize  uintptr
	MemoryLimit    uintptr
	MinRegionBytes uintptr
	EnableTracking bool
}

// Option mutates a Config.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		AlignmentSize:  8,
		MemoryLimit:    1024 * 1024 * 1024, // 1GB limit
		MinRegionBytes: 64,
		EnableTracking: true,
	}
}

// WithAlignment sets the default allocation alignment.
func WithAlignment(alignment uintptr) Option {
	return func(c *Config) { c.AlignmentSize = alignment }
}

// WithMemoryLimit caps total live bytes across the allocator.
func WithMemoryLimit(limit uintptr) Option {
	return func(c *Config) { c.MemoryLimit = limit }
}

// WithMinRegionBytes sets the smallest region capacity handed out.
func WithMinRegionBytes(n uintptr) Option {
	return func(c *Config) { c.MinRegionBytes = n }
}

// WithTracking toggles allocation accounting.
func WithTracking(enabled bool) Option {
	return func(c *Config) { c.EnableTracking = enabled }
}

// SystemAllocator is a simple wrapper around Go's memory allocator that
// enforces the configured memory limit and keeps statistics.
type SystemAllocator struct {
	config          *Config
	totalAllocated  uintptr
	totalFreed      uintptr
	allocationCount uint64
	freeCount       uint64
	active          int64
	peak            int64
	mu              sync.Mutex
}

// NewSystemAllocator creates a new system allocator.
func NewSystemAllocator(options ...Option) *SystemAllocator {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}

	return &SystemAllocator{config: config}
}

// Alloc allocates an aligned byte slice, failing with OutOfMemory when the
// configured limit would be exceeded.
func (sa *SystemAllocator) Alloc(size uintptr) ([]byte, error) {
	if size == 0 {
		return nil, serr.InvalidImage("zero size allocation")
	}

	alignedSize := alignUp(size, sa.config.AlignmentSize)

	if sa.config.MemoryLimit > 0 {
		current := atomic.LoadUintptr(&sa.totalAllocated) - atomic.LoadUintptr(&sa.totalFreed)
		if current+alignedSize > sa.config.MemoryLimit {
			return nil, serr.OutOfMemory(alignedSize, sa.config.MemoryLimit)
		}
	}

	buf := make([]byte, alignedSize)

	atomic.AddUintptr(&sa.totalAllocated, alignedSize)
	atomic.AddUint64(&sa.allocationCount, 1)

	if sa.config.EnableTracking {
		sa.mu.Lock()
		sa.active++
		if sa.active > sa.peak {
			sa.peak = sa.active
		}
		sa.mu.Unlock()
	}

	return buf, nil
}

// Free releases accounting for a previously allocated slice. The bytes
// themselves are reclaimed by the Go runtime once unreferenced.
func (sa *SystemAllocator) Free(buf []byte) {
	if buf == nil {
		return
	}

	atomic.AddUintptr(&sa.totalFreed, uintptr(cap(buf)))
	atomic.AddUint64(&sa.freeCount, 1)

	if sa.config.EnableTracking {
		sa.mu.Lock()
		sa.active--
		sa.mu.Unlock()
	}
}

// TotalAllocated returns total allocated bytes.
func (sa *SystemAllocator) TotalAllocated() uintptr {
	return atomic.LoadUintptr(&sa.totalAllocated)
}

// TotalFreed returns total freed bytes.
func (sa *SystemAllocator) TotalFreed() uintptr {
	return atomic.LoadUintptr(&sa.totalFreed)
}

// ActiveAllocations returns the number of live allocations.
func (sa *SystemAllocator) ActiveAllocations() int {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	return int(sa.active)
}

// Stats returns allocation statistics.
func (sa *SystemAllocator) Stats() Stats {
	sa.mu.Lock()
	active := sa.active
	peak := sa.peak
	sa.mu.Unlock()

	allocated := atomic.LoadUintptr(&sa.totalAllocated)
	freed := atomic.LoadUintptr(&sa.totalFreed)

	return Stats{
		TotalAllocated:    allocated,
		TotalFreed:        freed,
		ActiveAllocations: int(active),
		PeakAllocations:   int(peak),
		AllocationCount:   atomic.LoadUint64(&sa.allocationCount),
		FreeCount:         atomic.LoadUint64(&sa.freeCount),
		BytesInUse:        allocated - freed,
	}
}

// Reset clears statistics. Live allocations are unaffected.
func (sa *SystemAllocator) Reset() {
	sa.mu.Lock()
	sa.active = 0
	sa.peak = 0
	sa.mu.Unlock()

	atomic.StoreUintptr(&sa.totalAllocated, 0)
	atomic.StoreUintptr(&sa.totalFreed, 0)
	atomic.StoreUint64(&sa.allocationCount, 0)
	atomic.StoreUint64(&sa.freeCount, 0)
}

// Utility functions

// alignUp aligns a size up to the nearest multiple of alignment.
// Alignment must be a power of two.
func alignUp(size, alignment uintptr) uintptr {
	return (size + alignment - 1) &^ (alignment - 1)
}

// nextCapacity doubles current capacity until it covers need, bounding the
// number of relocations to O(log n) over a region's lifetime.
func nextCapacity(current, need, minimum uintptr) uintptr {
	capacity := current
	if capacity < minimum {
		capacity = minimum
	}
	for capacity < need {
		capacity *= 2
	}
	return capacity
}
