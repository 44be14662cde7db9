// Package compact implements relocatable value containers: dynamic arrays,
// strings and optionals whose complete state lives in their own byte image.
// No field is ever an absolute pointer; spilled containers reference their
// tail through a chunk-slot index, so a container's byte image copied to any
// other location (another buffer, thread or process) remains a fully valid,
// independently usable instance. This is what lets the actor runtime ship
// message payloads across boundaries without serialization.
//
// Element and message types stored in compact containers must be fixed-size
// and pointer-free (integers, floats, bools, arrays and structs thereof).
package compact

import (
	"encoding/binary"
	"unsafe"

	serr "github.com/metrosim/substrate/internal/errors"
)

// Image kind markers, first header word of every byte image.
const (
	vecMagic uint32 = 0x43_56_45_43 // "CVEC"
	strMagic uint32 = 0x43_53_54_52 // "CSTR"
	optMagic uint32 = 0x43_4F_50_54 // "COPT"
)

const headerBytes = 12 // magic + elem size + length, little-endian u32 each

func putHeader(dst []byte, magic, elemSize, length uint32) {
	binary.LittleEndian.PutUint32(dst[0:4], magic)
	binary.LittleEndian.PutUint32(dst[4:8], elemSize)
	binary.LittleEndian.PutUint32(dst[8:12], length)
}

func readHeader(img []byte, wantMagic uint32) (elemSize, length uint32, err error) {
	if len(img) < headerBytes {
		return 0, 0, serr.InvalidImage("image shorter than header")
	}
	if binary.LittleEndian.Uint32(img[0:4]) != wantMagic {
		return 0, 0, serr.InvalidImage("image kind mismatch")
	}
	elemSize = binary.LittleEndian.Uint32(img[4:8])
	length = binary.LittleEndian.Uint32(img[8:12])
	if uint32(len(img)-headerBytes) < elemSize*length {
		return 0, 0, serr.InvalidImage("image payload truncated")
	}
	return elemSize, length, nil
}

// sizeOf returns the in-memory size of T.
func sizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// bytesOf exposes a value's in-memory bytes. The result aliases v.
func bytesOf[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

// ImageOf copies a fixed-size value into a fresh byte image. Used for plain
// message structs that need no container bookkeeping.
func ImageOf[T any](v *T) []byte {
	src := bytesOf(v)
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

// FromImageOf reconstructs a fixed-size value from its byte image.
func FromImageOf[T any](img []byte) (T, error) {
	var out T
	if len(img) != sizeOf[T]() {
		return out, serr.InvalidImage("value image size mismatch")
	}
	copy(bytesOf(&out), img)
	return out, nil
}
