package compact

import (
	"github.com/metrosim/substrate/internal/chunky"
	serr "github.com/metrosim/substrate/internal/errors"
)

// Str is a relocatable byte string. Short strings live inline in the head;
// longer ones spill their bytes into a chunk slot, referenced by index.
type Str struct {
	length  uint32
	spilled uint32
	slot    uint32
	byteCap uint32
	inline  [InlineBytes]byte
}

// NewStr returns an empty string.
func NewStr() Str {
	return Str{}
}

// NewStrFrom builds a string from s, spilling to the store when s exceeds
// the inline threshold.
func NewStrFrom(store *chunky.Store, s string) (Str, error) {
	var out Str
	if err := out.Append(store, s); err != nil {
		return Str{}, err
	}
	return out, nil
}

// Len returns the string's length in bytes.
func (s *Str) Len() int { return int(s.length) }

// Append extends the string with more bytes, spilling and growing as needed.
func (s *Str) Append(store *chunky.Store, more string) error {
	if len(more) == 0 {
		return nil
	}
	need := int(s.length) + len(more)

	if s.spilled == 0 {
		if need <= InlineBytes {
			copy(s.inline[s.length:], more)
			s.length = uint32(need)
			return nil
		}
		if err := s.spill(store, need); err != nil {
			return err
		}
	}

	if need > int(s.byteCap) {
		base, err := store.Grow(chunky.SlotIndex(s.slot), need)
		if err != nil {
			return err
		}
		s.byteCap = uint32(cap(base))
	}

	if err := store.SetLen(chunky.SlotIndex(s.slot), need); err != nil {
		return err
	}
	if err := store.Write(chunky.SlotIndex(s.slot), int(s.length), []byte(more)); err != nil {
		return err
	}
	s.length = uint32(need)
	return nil
}

// String materializes the content as a Go string.
func (s *Str) String(store *chunky.Store) (string, error) {
	if s.length == 0 {
		return "", nil
	}
	if s.spilled == 0 {
		return string(s.inline[:s.length]), nil
	}
	raw, err := store.Read(chunky.SlotIndex(s.slot), 0, int(s.length))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ByteAt returns the byte at index i.
func (s *Str) ByteAt(store *chunky.Store, i int) (byte, error) {
	if i < 0 || i >= int(s.length) {
		return 0, serr.OutOfBounds(i, 1, int(s.length))
	}
	if s.spilled == 0 {
		return s.inline[i], nil
	}
	raw, err := store.Read(chunky.SlotIndex(s.slot), i, 1)
	if err != nil {
		return 0, err
	}
	return raw[0], nil
}

// Image produces the string's self-contained byte image.
func (s *Str) Image(store *chunky.Store) ([]byte, error) {
	out := make([]byte, headerBytes+int(s.length))
	putHeader(out, strMagic, 1, s.length)

	if s.length == 0 {
		return out, nil
	}
	if s.spilled == 0 {
		copy(out[headerBytes:], s.inline[:s.length])
		return out, nil
	}

	raw, err := store.Read(chunky.SlotIndex(s.slot), 0, int(s.length))
	if err != nil {
		return nil, err
	}
	copy(out[headerBytes:], raw)
	return out, nil
}

// StrFromImage reconstructs an independent string from a byte image,
// allocating its tail in the destination store when it exceeds the inline
// threshold.
func StrFromImage(store *chunky.Store, img []byte) (Str, error) {
	var s Str

	elemSize, length, err := readHeader(img, strMagic)
	if err != nil {
		return s, err
	}
	if elemSize != 1 {
		return s, serr.InvalidImage("element size mismatch")
	}

	payload := int(length)
	s.length = length

	if payload <= InlineBytes {
		copy(s.inline[:], img[headerBytes:headerBytes+payload])
		return s, nil
	}

	slot, err := store.AllocateSlot(payload)
	if err != nil {
		return Str{}, err
	}
	if err := store.SetLen(slot, payload); err != nil {
		return Str{}, err
	}
	if err := store.Write(slot, 0, img[headerBytes:headerBytes+payload]); err != nil {
		return Str{}, err
	}

	capBytes, err := store.Cap(slot)
	if err != nil {
		return Str{}, err
	}

	s.spilled = 1
	s.slot = uint32(slot)
	s.byteCap = uint32(capBytes)
	return s, nil
}

// TakeImage produces the byte image, releases any spilled tail and leaves
// the string empty.
func (s *Str) TakeImage(store *chunky.Store) ([]byte, error) {
	img, err := s.Image(store)
	if err != nil {
		return nil, err
	}
	if err := s.Release(store); err != nil {
		return nil, err
	}
	return img, nil
}

// Release frees the spilled tail, if any, and resets the string to empty.
func (s *Str) Release(store *chunky.Store) error {
	if s.spilled == 1 {
		if err := store.Release(chunky.SlotIndex(s.slot)); err != nil {
			return err
		}
	}
	*s = Str{}
	return nil
}

func (s *Str) spill(store *chunky.Store, need int) error {
	slot, err := store.AllocateSlot(need * 2)
	if err != nil {
		return err
	}
	if s.length > 0 {
		if err := store.SetLen(slot, int(s.length)); err != nil {
			return err
		}
		if err := store.Write(slot, 0, s.inline[:s.length]); err != nil {
			return err
		}
	}

	capBytes, err := store.Cap(slot)
	if err != nil {
		return err
	}

	s.spilled = 1
	s.slot = uint32(slot)
	s.byteCap = uint32(capBytes)
	return nil
}
