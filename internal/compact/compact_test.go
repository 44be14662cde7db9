package compact

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrosim/substrate/internal/chunky"
	serr "github.com/metrosim/substrate/internal/errors"
)

func newTestStore(t *testing.T) *chunky.Store {
	t.Helper()
	return chunky.NewStore(chunky.DefaultConfig())
}

func TestVec_InlineAndSpill(t *testing.T) {
	store := newTestStore(t)
	var v Vec[uint64]

	// Four uint64s fill the inline buffer exactly.
	for i := 0; i < 4; i++ {
		require.NoError(t, v.Push(store, uint64(i*10)))
	}
	assert.Equal(t, 4, v.Len())
	assert.Equal(t, uint32(0), v.spilled)

	// The fifth element forces a spill; content survives the move.
	require.NoError(t, v.Push(store, uint64(40)))
	assert.Equal(t, uint32(1), v.spilled)

	for i := 0; i < 5; i++ {
		got, err := v.At(store, i)
		require.NoError(t, err)
		assert.Equal(t, uint64(i*10), got)
	}
}

func TestVec_SetAndBounds(t *testing.T) {
	store := newTestStore(t)
	var v Vec[int32]

	require.NoError(t, v.Push(store, 1))
	require.NoError(t, v.Push(store, 2))
	require.NoError(t, v.Set(store, 1, 20))

	got, err := v.At(store, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(20), got)

	_, err = v.At(store, 2)
	assert.True(t, stderrors.Is(err, serr.ErrOutOfBounds))

	err = v.Set(store, -1, 0)
	assert.True(t, stderrors.Is(err, serr.ErrOutOfBounds))
}

func TestVec_ImageRoundTripInline(t *testing.T) {
	store := newTestStore(t)
	var v Vec[int32]

	for i := 0; i < 3; i++ {
		require.NoError(t, v.Push(store, int32(i+100)))
	}

	img, err := v.Image(store)
	require.NoError(t, err)

	other := newTestStore(t)
	got, err := VecFromImage[int32](other, img)
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())

	for i := 0; i < 3; i++ {
		elem, err := got.At(other, i)
		require.NoError(t, err)
		assert.Equal(t, int32(i+100), elem)
	}
}

func TestVec_ImageRoundTripSpilled(t *testing.T) {
	store := newTestStore(t)
	var v Vec[uint64]

	for i := 0; i < 100; i++ {
		require.NoError(t, v.Push(store, uint64(i)))
	}

	img, err := v.Image(store)
	require.NoError(t, err)

	// Reconstruct into a different store, then mutate the original to
	// prove the copy is independent.
	other := newTestStore(t)
	got, err := VecFromImage[uint64](other, img)
	require.NoError(t, err)
	require.Equal(t, 100, got.Len())

	require.NoError(t, v.Set(store, 50, 9999))

	elem, err := got.At(other, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), elem)
}

func TestVec_ThousandElementsImageCopy(t *testing.T) {
	store := newTestStore(t)
	var v Vec[int64]

	for i := 0; i < 1000; i++ {
		require.NoError(t, v.Push(store, int64(i)))
	}
	require.Equal(t, 1000, v.Len())

	img, err := v.Image(store)
	require.NoError(t, err)

	moved := make([]byte, len(img))
	copy(moved, img)

	copied, err := VecFromImage[int64](store, moved)
	require.NoError(t, err)
	require.Equal(t, 1000, copied.Len())

	want, err := v.At(store, 999)
	require.NoError(t, err)
	got, err := copied.At(store, 999)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, int64(999), got)
}

func TestVec_CloneAndRelease(t *testing.T) {
	store := newTestStore(t)
	var v Vec[uint32]

	for i := 0; i < 50; i++ {
		require.NoError(t, v.Push(store, uint32(i)))
	}

	c, err := v.Clone(store)
	require.NoError(t, err)

	require.NoError(t, v.Release(store))
	assert.Equal(t, 0, v.Len())

	elem, err := c.At(store, 49)
	require.NoError(t, err)
	assert.Equal(t, uint32(49), elem)
}

func TestVec_TakeImageMovesOwnership(t *testing.T) {
	store := newTestStore(t)
	var v Vec[uint64]

	for i := 0; i < 40; i++ {
		require.NoError(t, v.Push(store, uint64(i)))
	}

	img, err := v.TakeImage(store)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())

	moved, err := VecFromImage[uint64](store, img)
	require.NoError(t, err)
	require.Equal(t, 40, moved.Len())

	elem, err := moved.At(store, 39)
	require.NoError(t, err)
	assert.Equal(t, uint64(39), elem)
}

func TestVec_FromImageRejectsMismatch(t *testing.T) {
	store := newTestStore(t)
	var v Vec[int32]
	require.NoError(t, v.Push(store, 7))

	img, err := v.Image(store)
	require.NoError(t, err)

	_, err = VecFromImage[int64](store, img)
	assert.True(t, stderrors.Is(err, serr.ErrInvalidImage))

	_, err = VecFromImage[int32](store, img[:headerBytes-1])
	assert.True(t, stderrors.Is(err, serr.ErrInvalidImage))

	_, err = StrFromImage(store, img)
	assert.True(t, stderrors.Is(err, serr.ErrInvalidImage))
}

func TestStr_InlineAndSpill(t *testing.T) {
	store := newTestStore(t)

	s, err := NewStrFrom(store, "short")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), s.spilled)

	require.NoError(t, s.Append(store, " string that grows past the inline buffer"))
	assert.Equal(t, uint32(1), s.spilled)

	got, err := s.String(store)
	require.NoError(t, err)
	assert.Equal(t, "short string that grows past the inline buffer", got)

	b, err := s.ByteAt(store, 0)
	require.NoError(t, err)
	assert.Equal(t, byte('s'), b)

	_, err = s.ByteAt(store, s.Len())
	assert.True(t, stderrors.Is(err, serr.ErrOutOfBounds))
}

func TestStr_ImageRoundTrip(t *testing.T) {
	store := newTestStore(t)

	for _, content := range []string{"", "inline", "a string long enough to spill out of the inline buffer"} {
		s, err := NewStrFrom(store, content)
		require.NoError(t, err)

		img, err := s.Image(store)
		require.NoError(t, err)

		other := newTestStore(t)
		got, err := StrFromImage(other, img)
		require.NoError(t, err)

		text, err := got.String(other)
		require.NoError(t, err)
		assert.Equal(t, content, text)
	}
}

func TestOption_RoundTrip(t *testing.T) {
	o := Some[int64](42)
	got, err := OptionFromImage[int64](o.Image())
	require.NoError(t, err)
	val, ok := got.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(42), val)

	n := None[int64]()
	got, err = OptionFromImage[int64](n.Image())
	require.NoError(t, err)
	_, ok = got.Get()
	assert.False(t, ok)
}

func TestImageOf_RoundTrip(t *testing.T) {
	type point struct {
		X, Y int32
	}

	p := point{X: 3, Y: -4}
	img := ImageOf(&p)

	got, err := FromImageOf[point](img)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = FromImageOf[point](img[:2])
	assert.True(t, stderrors.Is(err, serr.ErrInvalidImage))
}
