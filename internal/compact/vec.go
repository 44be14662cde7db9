package compact

import (
	"github.com/metrosim/substrate/internal/chunky"
	serr "github.com/metrosim/substrate/internal/errors"
)

// InlineBytes is the small-size optimization threshold: element payloads at
// or below this size live directly in the head with no chunk allocation.
const InlineBytes = 32

// Vec is a relocatable dynamic array of fixed-size elements. The head holds
// the length and either an inline buffer or a chunk-slot reference; all
// addressing is relative, so the byte image produced by Image is
// self-contained.
//
// A Vec has value/move semantics over its spilled tail: copying the head
// transfers ownership of the slot, and only one live instance may mutate it.
// Use Clone for an independent deep copy.
type Vec[T any] struct {
	length  uint32
	spilled uint32 // 0 = inline, 1 = chunk-backed
	slot    uint32 // chunk slot, valid when spilled
	elemCap uint32 // element capacity of the chunk, valid when spilled
	inline  [InlineBytes]byte
}

// NewVec returns an empty vector.
func NewVec[T any]() Vec[T] {
	return Vec[T]{}
}

// Len returns the number of elements.
func (v *Vec[T]) Len() int { return int(v.length) }

// Push appends an element, growing the backing chunk geometrically when the
// capacity is exhausted. Growth failures propagate the allocator's
// OutOfMemory.
func (v *Vec[T]) Push(store *chunky.Store, elem T) error {
	elemSize := sizeOf[T]()
	need := (int(v.length) + 1) * elemSize

	if v.spilled == 0 {
		if need <= InlineBytes {
			copy(v.inline[int(v.length)*elemSize:], bytesOf(&elem))
			v.length++
			return nil
		}
		if err := v.spill(store, need); err != nil {
			return err
		}
	}

	if int(v.length)+1 > int(v.elemCap) {
		base, err := store.Grow(chunky.SlotIndex(v.slot), need)
		if err != nil {
			return err
		}
		v.elemCap = uint32(cap(base) / elemSize)
	}

	if err := store.SetLen(chunky.SlotIndex(v.slot), need); err != nil {
		return err
	}
	if err := store.Write(chunky.SlotIndex(v.slot), int(v.length)*elemSize, bytesOf(&elem)); err != nil {
		return err
	}
	v.length++
	return nil
}

// At returns the element at index i. Indexing past the current length fails
// with OutOfBounds.
func (v *Vec[T]) At(store *chunky.Store, i int) (T, error) {
	var out T
	if i < 0 || i >= int(v.length) {
		return out, serr.OutOfBounds(i, 1, int(v.length))
	}

	elemSize := sizeOf[T]()
	if v.spilled == 0 {
		copy(bytesOf(&out), v.inline[i*elemSize:(i+1)*elemSize])
		return out, nil
	}

	raw, err := store.Read(chunky.SlotIndex(v.slot), i*elemSize, elemSize)
	if err != nil {
		return out, err
	}
	copy(bytesOf(&out), raw)
	return out, nil
}

// Set overwrites the element at index i.
func (v *Vec[T]) Set(store *chunky.Store, i int, elem T) error {
	if i < 0 || i >= int(v.length) {
		return serr.OutOfBounds(i, 1, int(v.length))
	}

	elemSize := sizeOf[T]()
	if v.spilled == 0 {
		copy(v.inline[i*elemSize:], bytesOf(&elem))
		return nil
	}
	return store.Write(chunky.SlotIndex(v.slot), i*elemSize, bytesOf(&elem))
}

// Image produces the vector's self-contained byte image: a header plus the
// element bytes, independent of where the tail currently lives.
func (v *Vec[T]) Image(store *chunky.Store) ([]byte, error) {
	elemSize := sizeOf[T]()
	payload := int(v.length) * elemSize

	out := make([]byte, headerBytes+payload)
	putHeader(out, vecMagic, uint32(elemSize), v.length)

	if payload == 0 {
		return out, nil
	}
	if v.spilled == 0 {
		copy(out[headerBytes:], v.inline[:payload])
		return out, nil
	}

	raw, err := store.Read(chunky.SlotIndex(v.slot), 0, payload)
	if err != nil {
		return nil, err
	}
	copy(out[headerBytes:], raw)
	return out, nil
}

// VecFromImage reconstructs an independent vector from a byte image,
// allocating its tail (when any) in the destination store. This is the
// explicit chunk-content transfer used for cross-store and cross-process
// moves.
func VecFromImage[T any](store *chunky.Store, img []byte) (Vec[T], error) {
	var v Vec[T]

	elemSize, length, err := readHeader(img, vecMagic)
	if err != nil {
		return v, err
	}
	if int(elemSize) != sizeOf[T]() {
		return v, serr.InvalidImage("element size mismatch")
	}

	payload := int(elemSize) * int(length)
	v.length = length

	if payload <= InlineBytes {
		copy(v.inline[:], img[headerBytes:headerBytes+payload])
		return v, nil
	}

	slot, err := store.AllocateSlot(payload)
	if err != nil {
		return Vec[T]{}, err
	}
	if err := store.SetLen(slot, payload); err != nil {
		return Vec[T]{}, err
	}
	if err := store.Write(slot, 0, img[headerBytes:headerBytes+payload]); err != nil {
		return Vec[T]{}, err
	}

	capBytes, err := store.Cap(slot)
	if err != nil {
		return Vec[T]{}, err
	}

	v.spilled = 1
	v.slot = uint32(slot)
	v.elemCap = uint32(capBytes / int(elemSize))
	return v, nil
}

// TakeImage is the move counterpart of Image: it produces the byte image,
// releases any spilled tail and leaves the vector empty, so slot ownership
// passes to whoever reconstructs from the image.
func (v *Vec[T]) TakeImage(store *chunky.Store) ([]byte, error) {
	img, err := v.Image(store)
	if err != nil {
		return nil, err
	}
	if err := v.Release(store); err != nil {
		return nil, err
	}
	return img, nil
}

// Clone deep-copies the vector within one store.
func (v *Vec[T]) Clone(store *chunky.Store) (Vec[T], error) {
	img, err := v.Image(store)
	if err != nil {
		return Vec[T]{}, err
	}
	return VecFromImage[T](store, img)
}

// Release frees the spilled tail, if any, and resets the vector to empty.
func (v *Vec[T]) Release(store *chunky.Store) error {
	if v.spilled == 1 {
		if err := store.Release(chunky.SlotIndex(v.slot)); err != nil {
			return err
		}
	}
	*v = Vec[T]{}
	return nil
}

// spill moves inline content into a fresh chunk sized for need bytes.
func (v *Vec[T]) spill(store *chunky.Store, need int) error {
	elemSize := sizeOf[T]()
	used := int(v.length) * elemSize

	slot, err := store.AllocateSlot(need * 2)
	if err != nil {
		return err
	}
	if used > 0 {
		if err := store.SetLen(slot, used); err != nil {
			return err
		}
		if err := store.Write(slot, 0, v.inline[:used]); err != nil {
			return err
		}
	}

	capBytes, err := store.Cap(slot)
	if err != nil {
		return err
	}

	v.spilled = 1
	v.slot = uint32(slot)
	v.elemCap = uint32(capBytes / elemSize)
	return nil
}
