package allocator

import (
	"sync"

	serr "github.com/metrosim/substrate/internal/errors"
)

// Handle identifies a region owned by a RegionAllocator. Holders must
// re-resolve the base slice after any Grow because the backing bytes may
// relocate.
type Handle uint32

// region is the bookkeeping record for one growable byte region.
type region struct {
	buf      []byte
	released bool
}

// RegionAllocator hands out independently growable regions addressed by
// handle. Growth happens in place when the reserved capacity allows it and
// relocates (copy to a larger backing) when it does not. Reserved capacity
// grows geometrically so the number of relocations stays bounded.
type RegionAllocator struct {
	config  *Config
	backing *SystemAllocator
	regions []region
	free    []Handle
	mu      sync.Mutex
}

// NewRegionAllocator creates a region allocator on top of a system backing.
func NewRegionAllocator(options ...Option) *RegionAllocator {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}

	return &RegionAllocator{
		config:  config,
		backing: NewSystemAllocator(options...),
	}
}

// AllocateRegion reserves a region of at least size bytes with the given
// alignment and returns its handle plus the current base slice. The base is
// valid until the next Grow on the same handle.
func (ra *RegionAllocator) AllocateRegion(size, alignment uintptr) (Handle, []byte, error) {
	if size == 0 {
		return 0, nil, serr.InvalidImage("zero size region")
	}
	if alignment == 0 {
		alignment = ra.config.AlignmentSize
	}
	if alignment&(alignment-1) != 0 {
		return 0, nil, serr.InvalidImage("alignment must be a power of two")
	}

	capacity := nextCapacity(0, alignUp(size, alignment), ra.config.MinRegionBytes)

	buf, err := ra.backing.Alloc(capacity)
	if err != nil {
		return 0, nil, err
	}

	ra.mu.Lock()
	defer ra.mu.Unlock()

	var h Handle
	if n := len(ra.free); n > 0 {
		h = ra.free[n-1]
		ra.free = ra.free[:n-1]
		ra.regions[h] = region{buf: buf}
	} else {
		h = Handle(len(ra.regions))
		ra.regions = append(ra.regions, region{buf: buf})
	}

	return h, buf[:size], nil
}

// Grow extends a region to hold at least newSize bytes and returns the base
// slice content must now be accessed through. Previously returned bases for
// this handle are invalid after Grow.
func (ra *RegionAllocator) Grow(h Handle, newSize uintptr) ([]byte, error) {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	r, err := ra.lookup(h)
	if err != nil {
		return nil, err
	}

	// In-place growth while the reserved capacity covers the request.
	if newSize <= uintptr(cap(r.buf)) {
		ra.regions[h].buf = r.buf[:cap(r.buf)]
		return ra.regions[h].buf[:newSize], nil
	}

	capacity := nextCapacity(uintptr(cap(r.buf)), newSize, ra.config.MinRegionBytes)

	next, err := ra.backing.Alloc(capacity)
	if err != nil {
		return nil, err
	}

	copy(next, r.buf)
	ra.backing.Free(r.buf)
	ra.regions[h].buf = next

	return next[:newSize], nil
}

// Bytes resolves the current base slice of a region.
func (ra *RegionAllocator) Bytes(h Handle) ([]byte, error) {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	r, err := ra.lookup(h)
	if err != nil {
		return nil, err
	}
	return r.buf, nil
}

// Capacity returns a region's reserved capacity in bytes.
func (ra *RegionAllocator) Capacity(h Handle) (uintptr, error) {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	r, err := ra.lookup(h)
	if err != nil {
		return 0, err
	}
	return uintptr(cap(r.buf)), nil
}

// Release returns a region to the allocator. The handle may be reused by a
// later AllocateRegion; use after release is a caller logic error and is
// reported when detected.
func (ra *RegionAllocator) Release(h Handle) error {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	r, err := ra.lookup(h)
	if err != nil {
		return err
	}

	ra.backing.Free(r.buf)
	ra.regions[h] = region{released: true}
	ra.free = append(ra.free, h)

	return nil
}

// Stats reports the backing allocator's statistics.
func (ra *RegionAllocator) Stats() Stats {
	return ra.backing.Stats()
}

// lookup validates a handle. Callers must hold ra.mu.
func (ra *RegionAllocator) lookup(h Handle) (region, error) {
	if int(h) >= len(ra.regions) {
		return region{}, serr.OutOfBounds(int(h), 1, len(ra.regions))
	}
	r := ra.regions[h]
	if r.released {
		return region{}, serr.SlotReleased(uint32(h))
	}
	return r, nil
}
