package compact

import serr "github.com/metrosim/substrate/internal/errors"

// Option is a relocatable optional value. The payload is stored by value in
// the head, so an Option's image never references a chunk.
type Option[T any] struct {
	present uint32
	value   T
}

// Some returns an option holding v.
func Some[T any](v T) Option[T] {
	return Option[T]{present: 1, value: v}
}

// None returns the empty option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// IsSome reports whether a value is present.
func (o *Option[T]) IsSome() bool { return o.present == 1 }

// Get returns the value and whether one is present.
func (o *Option[T]) Get() (T, bool) {
	return o.value, o.present == 1
}

// Set stores v, replacing any previous value.
func (o *Option[T]) Set(v T) {
	o.present = 1
	o.value = v
}

// Clear empties the option.
func (o *Option[T]) Clear() {
	*o = Option[T]{}
}

// Image produces the option's self-contained byte image. An absent value
// emits a header-only image.
func (o *Option[T]) Image() []byte {
	elemSize := sizeOf[T]()
	if o.present == 0 {
		out := make([]byte, headerBytes)
		putHeader(out, optMagic, uint32(elemSize), 0)
		return out
	}
	out := make([]byte, headerBytes+elemSize)
	putHeader(out, optMagic, uint32(elemSize), 1)
	copy(out[headerBytes:], bytesOf(&o.value))
	return out
}

// OptionFromImage reconstructs an option from a byte image.
func OptionFromImage[T any](img []byte) (Option[T], error) {
	var o Option[T]

	elemSize, length, err := readHeader(img, optMagic)
	if err != nil {
		return o, err
	}
	if int(elemSize) != sizeOf[T]() {
		return o, serr.InvalidImage("element size mismatch")
	}
	if length > 1 {
		return o, serr.InvalidImage("option length must be 0 or 1")
	}

	if length == 1 {
		o.present = 1
		copy(bytesOf(&o.value), img[headerBytes:headerBytes+int(elemSize)])
	}
	return o, nil
}
