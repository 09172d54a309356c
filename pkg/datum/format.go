// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package datum

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/util"
)

var ErrCorrupt = errors.New("data corrupted")

const (
	// HeapHeaderSize is the fixed part of a heap tuple header.
	HeapHeaderSize = 16
	// MinimalHeaderSize is the fixed part of a minimal tuple header.
	MinimalHeaderSize = 8

	InfoHasNulls    uint16 = 0x0001
	InfoHasVarWidth uint16 = 0x0002

	// MaxShortVarlena is the largest total size with a 1-byte header.
	MaxShortVarlena = 0x7F
)

type Format int

const (
	FormatHeap Format = iota
	FormatMinimal
)

// Header is the decoded fixed part of a tuple.
type Header struct {
	Xmin     uint32
	Xmax     uint32
	Natts    int
	Infomask uint16
	Hoff     int
	// Nulls aliases the tuple's null bitmap. Empty when the tuple has
	// no nulls.
	Nulls util.Bitmap
}

func (hdr *Header) HasNulls() bool {
	return util.FlagIsSet(hdr.Infomask, InfoHasNulls)
}

func (hdr *Header) AttIsNull(att int) bool {
	if att >= hdr.Natts {
		return true
	}
	return !hdr.Nulls.RowIsValid(uint64(att))
}

func ReadHeader(tup []byte, format Format) (Header, error) {
	var hdr Header
	fixed := HeapHeaderSize
	if format == FormatMinimal {
		fixed = MinimalHeaderSize
	}
	if len(tup) < fixed {
		return hdr, errors.Wrapf(ErrCorrupt, "tuple of %d bytes shorter than header", len(tup))
	}
	if format == FormatHeap {
		hdr.Xmin = binary.LittleEndian.Uint32(tup[0:])
		hdr.Xmax = binary.LittleEndian.Uint32(tup[4:])
		hdr.Natts = int(binary.LittleEndian.Uint16(tup[8:]))
		hdr.Infomask = binary.LittleEndian.Uint16(tup[10:])
		hdr.Hoff = int(tup[12])
	} else {
		hdr.Natts = int(binary.LittleEndian.Uint16(tup[0:]))
		hdr.Infomask = binary.LittleEndian.Uint16(tup[2:])
		hdr.Hoff = int(tup[4])
	}
	if hdr.Hoff < fixed || hdr.Hoff > len(tup) {
		return hdr, errors.Wrapf(ErrCorrupt, "invalid tuple data offset %d", hdr.Hoff)
	}
	if hdr.HasNulls() {
		nb := util.EntryCount(hdr.Natts)
		if fixed+nb > hdr.Hoff {
			return hdr, errors.Wrapf(ErrCorrupt, "null bitmap overlaps data")
		}
		hdr.Nulls.Wrap(tup[fixed : fixed+nb])
	}
	return hdr, nil
}

// SetXmax stamps the deleting transaction into a heap tuple in place.
func SetXmax(tup []byte, xid uint32) {
	binary.LittleEndian.PutUint32(tup[4:], xid)
}

// AlignNominal rounds off up to the attribute's alignment.
func AlignNominal(off int, align int) int {
	if align <= 1 {
		return off
	}
	return util.AlignValue(off, align)
}

// VarSize decodes a varlena header at data[off]. It returns the total
// size including the header and the header size.
func VarSize(data []byte, off int) (int, int, error) {
	if off >= len(data) {
		return 0, 0, errors.Wrapf(ErrCorrupt, "varlena header at %d beyond %d bytes", off, len(data))
	}
	b := data[off]
	if b&0x01 == 0x01 {
		size := int(b >> 1)
		if size < 1 {
			return 0, 0, errors.Wrapf(ErrCorrupt, "invalid short varlena length %d", size)
		}
		return size, 1, nil
	}
	if off+4 > len(data) {
		return 0, 0, errors.Wrapf(ErrCorrupt, "varlena header at %d truncated", off)
	}
	size := int(binary.LittleEndian.Uint32(data[off:]) >> 2)
	if size < 4 {
		return 0, 0, errors.Wrapf(ErrCorrupt, "invalid varlena length %d", size)
	}
	return size, 4, nil
}

// VarlenaShortable reports whether a payload fits a 1-byte header.
func VarlenaShortable(payload int) bool {
	return payload+1 <= MaxShortVarlena
}

// AppendVarlena appends a header and payload. Long values are aligned
// first, short values are not.
func AppendVarlena(dst []byte, payload []byte, align int) []byte {
	if VarlenaShortable(len(payload)) {
		dst = append(dst, byte((len(payload)+1)<<1|1))
		return append(dst, payload...)
	}
	dst = padTo(dst, AlignNominal(len(dst), align))
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)+4)<<2)
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

func padTo(dst []byte, size int) []byte {
	for len(dst) < size {
		dst = append(dst, 0)
	}
	return dst
}

// AppendDatum encodes one non-null value with the layout of typ.
func AppendDatum(dst []byte, typ *common.TypeInfo, val common.Value) []byte {
	switch typ.Len {
	case common.LenVarlena:
		return AppendVarlena(dst, util.UnsafeStringToBytes(val.Str), typ.Align)
	case common.LenCString:
		dst = append(dst, val.Str...)
		return append(dst, 0)
	}
	dst = padTo(dst, AlignNominal(len(dst), typ.Align))
	if typ.Len > 8 {
		start := len(dst)
		dst = append(dst, val.Str...)
		return padTo(dst, start+typ.Len)[:start+typ.Len]
	}
	var buf [8]byte
	switch typ.Kind {
	case common.KindFloat:
		if typ.Len == 4 {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(val.F64)))
		} else {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(val.F64))
		}
	case common.KindBool:
		if val.Bool {
			buf[0] = 1
		}
	default:
		binary.LittleEndian.PutUint64(buf[:], uint64(val.I64))
	}
	return append(dst, buf[:typ.Len]...)
}

// FormHeapTuple builds a heap tuple stamped with xmin.
func FormHeapTuple(desc *common.TupleDesc, values []common.Value, xmin uint32) []byte {
	return formTuple(desc, values, FormatHeap, xmin)
}

// FormMinimalTuple builds a tuple without visibility fields.
func FormMinimalTuple(desc *common.TupleDesc, values []common.Value) []byte {
	return formTuple(desc, values, FormatMinimal, 0)
}

func formTuple(desc *common.TupleDesc, values []common.Value, format Format, xmin uint32) []byte {
	natts := desc.Natts()
	util.AssertFunc(len(values) == natts)
	fixed := HeapHeaderSize
	if format == FormatMinimal {
		fixed = MinimalHeaderSize
	}
	var infomask uint16
	for i := 0; i < natts; i++ {
		if values[i].IsNull {
			infomask |= InfoHasNulls
		}
		if !desc.Attrs[i].Typ.IsFixed() {
			infomask |= InfoHasVarWidth
		}
	}
	hoff := fixed
	if util.FlagIsSet(infomask, InfoHasNulls) {
		hoff += util.EntryCount(natts)
	}
	hoff = util.AlignValue8(hoff)
	util.AssertFunc(hoff <= math.MaxUint8)

	tup := make([]byte, hoff, hoff+natts*8)
	if format == FormatHeap {
		binary.LittleEndian.PutUint32(tup[0:], xmin)
		binary.LittleEndian.PutUint16(tup[8:], uint16(natts))
		binary.LittleEndian.PutUint16(tup[10:], infomask)
		tup[12] = byte(hoff)
	} else {
		binary.LittleEndian.PutUint16(tup[0:], uint16(natts))
		binary.LittleEndian.PutUint16(tup[2:], infomask)
		tup[4] = byte(hoff)
	}
	if util.FlagIsSet(infomask, InfoHasNulls) {
		bits := tup[fixed : fixed+util.EntryCount(natts)]
		for i := 0; i < natts; i++ {
			if !values[i].IsNull {
				bits[i/8] |= 1 << (i % 8)
			}
		}
	}

	//data offsets are relative to hoff so alignment survives copying
	data := tup[hoff:]
	for i := 0; i < natts; i++ {
		if values[i].IsNull {
			continue
		}
		data = AppendDatum(data, desc.Attrs[i].Typ, values[i])
	}
	return append(tup[:hoff], data...)
}

// HeapToMinimal copies a heap tuple into minimal format.
func HeapToMinimal(tup []byte) ([]byte, error) {
	hdr, err := ReadHeader(tup, FormatHeap)
	if err != nil {
		return nil, err
	}
	nb := 0
	if hdr.HasNulls() {
		nb = util.EntryCount(hdr.Natts)
	}
	hoff := util.AlignValue8(MinimalHeaderSize + nb)
	data := tup[hdr.Hoff:]
	ret := make([]byte, hoff+len(data))
	binary.LittleEndian.PutUint16(ret[0:], uint16(hdr.Natts))
	binary.LittleEndian.PutUint16(ret[2:], hdr.Infomask)
	ret[4] = byte(hoff)
	copy(ret[MinimalHeaderSize:], hdr.Nulls.Bits)
	copy(ret[hoff:], data)
	return ret, nil
}
