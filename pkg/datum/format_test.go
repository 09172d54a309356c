package datum

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/vexec/pkg/common"
)

func testDesc(tm *common.TypeMap) *common.TupleDesc {
	return common.NewTupleDesc(
		common.Attribute{Name: "a", Typ: tm.MustLookup(oid.T_int4)},
		common.Attribute{Name: "b", Typ: tm.MustLookup(oid.T_text)},
		common.Attribute{Name: "c", Typ: tm.MustLookup(oid.T_int8)},
	)
}

func TestFormHeapTuple(t *testing.T) {
	tm := common.NewTypeMap()
	desc := testDesc(tm)
	vals := []common.Value{
		common.IntValue(desc.Attrs[0].Typ, 7),
		common.StringValue(desc.Attrs[1].Typ, "abc"),
		common.IntValue(desc.Attrs[2].Typ, -1),
	}
	tup := FormHeapTuple(desc, vals, 5)
	hdr, err := ReadHeader(tup, FormatHeap)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), hdr.Xmin)
	assert.Equal(t, uint32(0), hdr.Xmax)
	assert.Equal(t, 3, hdr.Natts)
	assert.False(t, hdr.HasNulls())
	assert.Equal(t, 16, hdr.Hoff)
	//int4 | short varlena "abc" | pad to 8 | int8
	data := tup[hdr.Hoff:]
	assert.Equal(t, []byte{7, 0, 0, 0}, data[0:4])
	assert.Equal(t, byte(4<<1|1), data[4])
	assert.Equal(t, []byte("abc"), data[5:8])
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), binary.LittleEndian.Uint64(data[8:16]))
	assert.Len(t, data, 16)

	SetXmax(tup, 9)
	hdr, err = ReadHeader(tup, FormatHeap)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), hdr.Xmax)
}

func TestFormMinimalTupleWithNulls(t *testing.T) {
	tm := common.NewTypeMap()
	desc := testDesc(tm)
	vals := []common.Value{
		common.NullValue(desc.Attrs[0].Typ),
		common.StringValue(desc.Attrs[1].Typ, "x"),
		common.NullValue(desc.Attrs[2].Typ),
	}
	tup := FormMinimalTuple(desc, vals)
	hdr, err := ReadHeader(tup, FormatMinimal)
	require.NoError(t, err)
	assert.True(t, hdr.HasNulls())
	assert.Equal(t, 16, hdr.Hoff)
	assert.True(t, hdr.AttIsNull(0))
	assert.False(t, hdr.AttIsNull(1))
	assert.True(t, hdr.AttIsNull(2))
	//beyond natts reads as null
	assert.True(t, hdr.AttIsNull(5))
	assert.Equal(t, []byte{2<<1 | 1, 'x'}, tup[hdr.Hoff:])
}

func TestVarlenaHeaders(t *testing.T) {
	long := strings.Repeat("z", 200)
	buf := AppendVarlena([]byte{1}, []byte(long), 4)
	//aligned to 4 before a long header
	assert.Equal(t, []byte{1, 0, 0, 0}, buf[:4])
	size, hdrSize, err := VarSize(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, 204, size)
	assert.Equal(t, 4, hdrSize)
	assert.True(t, bytes.Equal([]byte(long), buf[8:]))

	short := AppendVarlena(nil, []byte("hi"), 4)
	size, hdrSize, err = VarSize(short, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, size)
	assert.Equal(t, 1, hdrSize)

	_, _, err = VarSize([]byte{0, 0}, 0)
	assert.ErrorIs(t, err, ErrCorrupt)
	_, _, err = VarSize([]byte{0x08, 0, 0, 0}, 0)
	assert.ErrorIs(t, err, ErrCorrupt)
	_, _, err = VarSize(nil, 0)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReadHeaderCorrupt(t *testing.T) {
	_, err := ReadHeader([]byte{1, 2, 3}, FormatHeap)
	assert.ErrorIs(t, err, ErrCorrupt)

	tup := make([]byte, 16)
	tup[12] = 40
	_, err = ReadHeader(tup, FormatHeap)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestBlockWriter(t *testing.T) {
	tm := common.NewTypeMap()
	i8 := tm.MustLookup(oid.T_int8)

	w := NewBlockWriter(i8, 4, true)
	w.Append(common.IntValue(i8, 100))
	w.Append(common.NullValue(i8))
	w.Append(common.IntValue(i8, 103))
	w.Append(common.IntValue(i8, 99))
	assert.True(t, w.Full())
	buf := w.Flush()
	assert.Equal(t, 0, w.Rows())

	blk, err := ParseBlock(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, blk.Rows)
	assert.True(t, blk.HasNulls())
	assert.True(t, blk.IsDelta())
	assert.Equal(t, int64(100), blk.DeltaBase)
	assert.False(t, blk.Nulls.RowIsValid(1))
	require.Len(t, blk.Data, 12)
	assert.Equal(t, int32(0), int32(binary.LittleEndian.Uint32(blk.Data[0:])))
	assert.Equal(t, int32(3), int32(binary.LittleEndian.Uint32(blk.Data[4:])))
	assert.Equal(t, int32(-4), int32(binary.LittleEndian.Uint32(blk.Data[8:])))

	txt := tm.MustLookup(oid.T_text)
	w = NewBlockWriter(txt, 8, true)
	w.Append(common.StringValue(txt, "a"))
	w.Append(common.StringValue(txt, "bc"))
	blk, err = ParseBlock(w.Flush())
	require.NoError(t, err)
	assert.False(t, blk.IsDelta())
	assert.False(t, blk.HasNulls())
	assert.Equal(t, []byte{2<<1 | 1, 'a', 3<<1 | 1, 'b', 'c'}, blk.Data)

	_, err = ParseBlock(buf[:10])
	assert.ErrorIs(t, err, ErrCorrupt)
	binary.LittleEndian.PutUint32(buf[12:], 1000)
	_, err = ParseBlock(buf)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestHeapToMinimal(t *testing.T) {
	tm := common.NewTypeMap()
	desc := testDesc(tm)
	vals := []common.Value{
		common.IntValue(desc.Attrs[0].Typ, 1),
		common.NullValue(desc.Attrs[1].Typ),
		common.IntValue(desc.Attrs[2].Typ, 2),
	}
	heap := FormHeapTuple(desc, vals, 7)
	min, err := HeapToMinimal(heap)
	require.NoError(t, err)
	assert.Equal(t, FormMinimalTuple(desc, vals), min)
}
