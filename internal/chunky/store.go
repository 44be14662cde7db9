// Package chunky provides slot-indexed, independently growable chunks of
// memory. Chunks decouple the logical growth of compact containers from the
// allocator layer's relocation behavior: holders keep slot indices, never
// raw addresses, and re-resolve the base after any growth.
package chunky

import (
	"sync"
	"sync/atomic"

	"github.com/metrosim/substrate/internal/allocator"
	serr "github.com/metrosim/substrate/internal/errors"
)

// SlotIndex addresses one chunk within a Store.
type SlotIndex uint32

// chunk tracks one slot's backing region and live length.
type chunk struct {
	handle   allocator.Handle
	length   int
	capacity int
	live     bool
	name     string // non-empty for persistent slots
}

// Statistics counts store activity.
type Statistics struct {
	SlotsAllocated uint64
	SlotsReleased  uint64
	Growths        uint64
	BytesLive      uint64
}

// Config controls store behavior.
type Config struct {
	// MinChunkBytes is the smallest chunk capacity handed out.
	MinChunkBytes int
	// MemoryLimit caps the backing allocator. Zero means the allocator
	// default.
	MemoryLimit uintptr
	// Persistence enables file backing for named slots. Nil disables it.
	Persistence *Persistence
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{MinChunkBytes: 64}
}

// Store owns a set of independently growable chunks addressed by slot index.
// Slot allocation, growth and release are serialized; resolved per-slot reads
// and writes are not, relying on the single-owner discipline of compact
// containers.
type Store struct {
	config Config
	alloc  *allocator.RegionAllocator
	chunks []chunk
	free   []SlotIndex
	stats  Statistics
	mutex  sync.Mutex
}

// NewStore creates a chunk store.
func NewStore(config Config) *Store {
	if config.MinChunkBytes <= 0 {
		config.MinChunkBytes = 64
	}

	opts := []allocator.Option{allocator.WithMinRegionBytes(uintptr(config.MinChunkBytes))}
	if config.MemoryLimit > 0 {
		opts = append(opts, allocator.WithMemoryLimit(config.MemoryLimit))
	}

	return &Store{
		config: config,
		alloc:  allocator.NewRegionAllocator(opts...),
	}
}

// AllocateSlot reserves a new chunk with at least initialCapacity bytes of
// backing. The returned slot never aliases another live slot. The chunk's
// length starts at zero.
func (s *Store) AllocateSlot(initialCapacity int) (SlotIndex, error) {
	return s.allocateSlot(initialCapacity, "")
}

// AllocatePersistentSlot reserves a chunk that participates in Snapshot and
// Restore under the given name. Names must be unique among live slots.
func (s *Store) AllocatePersistentSlot(name string, initialCapacity int) (SlotIndex, error) {
	if name == "" {
		return 0, serr.InvalidImage("persistent slot name must not be empty")
	}
	return s.allocateSlot(initialCapacity, name)
}

func (s *Store) allocateSlot(initialCapacity int, name string) (SlotIndex, error) {
	if initialCapacity <= 0 {
		initialCapacity = s.config.MinChunkBytes
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if name != "" {
		for _, c := range s.chunks {
			if c.live && c.name == name {
				return 0, serr.InvalidImage("persistent slot name already in use: " + name)
			}
		}
	}

	handle, base, err := s.alloc.AllocateRegion(uintptr(initialCapacity), 0)
	if err != nil {
		return 0, err
	}

	c := chunk{handle: handle, length: 0, capacity: cap(base), live: true, name: name}

	var slot SlotIndex
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
		s.chunks[slot] = c
	} else {
		slot = SlotIndex(len(s.chunks))
		s.chunks = append(s.chunks, c)
	}

	atomic.AddUint64(&s.stats.SlotsAllocated, 1)

	return slot, nil
}

// Grow extends a chunk's capacity by at least additional bytes and returns
// the new base slice. Any previously resolved base for this slot is invalid
// after Grow; holders must re-resolve from the slot index.
func (s *Store) Grow(slot SlotIndex, additional int) ([]byte, error) {
	if additional < 0 {
		return nil, serr.InvalidImage("negative growth")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, err := s.lookup(slot)
	if err != nil {
		return nil, err
	}

	base, err := s.alloc.Grow(c.handle, uintptr(c.capacity+additional))
	if err != nil {
		return nil, err
	}

	s.chunks[slot].capacity = cap(base)
	atomic.AddUint64(&s.stats.Growths, 1)

	return base, nil
}

// Bytes resolves the current base slice of a chunk, covering its full
// capacity. The slice is invalidated by the next Grow on the same slot.
func (s *Store) Bytes(slot SlotIndex) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, err := s.lookup(slot)
	if err != nil {
		return nil, err
	}
	return s.resolve(c)
}

// Len returns a chunk's live length.
func (s *Store) Len(slot SlotIndex) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, err := s.lookup(slot)
	if err != nil {
		return 0, err
	}
	return c.length, nil
}

// Cap returns a chunk's reserved capacity.
func (s *Store) Cap(slot SlotIndex) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, err := s.lookup(slot)
	if err != nil {
		return 0, err
	}
	return c.capacity, nil
}

// SetLen adjusts a chunk's live length within its capacity. Growing the live
// length is how writers expose newly appended bytes; shrinking below live
// content is the caller's decision to discard it.
func (s *Store) SetLen(slot SlotIndex, length int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, err := s.lookup(slot)
	if err != nil {
		return err
	}
	if length < 0 || length > c.capacity {
		return serr.OutOfBounds(length, 0, c.capacity)
	}
	s.chunks[slot].length = length
	return nil
}

// Read copies n bytes starting at offset out of a chunk. Access past the
// live length fails with OutOfBounds; it is never clamped.
func (s *Store) Read(slot SlotIndex, offset, n int) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, err := s.lookup(slot)
	if err != nil {
		return nil, err
	}
	if offset < 0 || n < 0 || offset+n > c.length {
		return nil, serr.OutOfBounds(offset, n, c.length)
	}

	base, err := s.resolve(c)
	if err != nil {
		return nil, err
	}

	out := make([]byte, n)
	copy(out, base[offset:offset+n])
	return out, nil
}

// Write copies data into a chunk at offset. Writes must land within the live
// length; extend with SetLen first. Violations fail with OutOfBounds.
func (s *Store) Write(slot SlotIndex, offset int, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, err := s.lookup(slot)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > c.length {
		return serr.OutOfBounds(offset, len(data), c.length)
	}

	base, err := s.resolve(c)
	if err != nil {
		return err
	}

	copy(base[offset:], data)
	return nil
}

// Release marks a slot free for reuse. Use after release is a caller logic
// error; the store reports it when the slot has not yet been reallocated.
func (s *Store) Release(slot SlotIndex) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, err := s.lookup(slot)
	if err != nil {
		return err
	}

	if err := s.alloc.Release(c.handle); err != nil {
		return err
	}

	s.chunks[slot] = chunk{}
	s.free = append(s.free, slot)
	atomic.AddUint64(&s.stats.SlotsReleased, 1)

	return nil
}

// Stats returns a snapshot of store statistics.
func (s *Store) Stats() Statistics {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	live := uint64(0)
	for _, c := range s.chunks {
		if c.live {
			live += uint64(c.length)
		}
	}

	return Statistics{
		SlotsAllocated: atomic.LoadUint64(&s.stats.SlotsAllocated),
		SlotsReleased:  atomic.LoadUint64(&s.stats.SlotsReleased),
		Growths:        atomic.LoadUint64(&s.stats.Growths),
		BytesLive:      live,
	}
}

// lookup validates a slot. Callers must hold s.mutex.
func (s *Store) lookup(slot SlotIndex) (chunk, error) {
	if int(slot) >= len(s.chunks) {
		return chunk{}, serr.OutOfBounds(int(slot), 1, len(s.chunks))
	}
	c := s.chunks[slot]
	if !c.live {
		return chunk{}, serr.SlotReleased(uint32(slot))
	}
	return c, nil
}

// resolve fetches the current base for a chunk. Callers must hold s.mutex.
func (s *Store) resolve(c chunk) ([]byte, error) {
	base, err := s.alloc.Bytes(c.handle)
	if err != nil {
		return nil, err
	}
	return base[:c.capacity], nil
}
