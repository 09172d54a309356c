package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap(t *testing.T) {
	bm := Bitmap{}
	assert.True(t, bm.AllValid())
	assert.True(t, bm.RowIsValid(100))

	bm.Init(10)
	assert.Len(t, bm.Bits, 2)
	bm.SetInvalid(1)
	bm.SetInvalid(9)
	assert.False(t, bm.RowIsValid(1))
	assert.False(t, bm.RowIsValid(9))
	assert.True(t, bm.RowIsValid(0))
	assert.Equal(t, 8, bm.CountValid(10))

	bm.Set(1, true)
	assert.True(t, bm.RowIsValid(1))

	other := Bitmap{}
	other.Wrap([]uint8{0x05})
	assert.True(t, other.RowIsValid(0))
	assert.False(t, other.RowIsValid(1))
	assert.True(t, other.RowIsValid(2))
}

func TestAlign(t *testing.T) {
	assert.Equal(t, 8, AlignValue(5, 8))
	assert.Equal(t, 4, AlignValue(4, 4))
	assert.Equal(t, 16, AlignValue8(9))
	assert.True(t, IsAligned(12, 4))
	assert.False(t, IsAligned(12, 8))
}
