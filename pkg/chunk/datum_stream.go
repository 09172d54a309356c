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

package chunk

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/datum"
	"github.com/daviszhen/vexec/pkg/util"
)

const maxVarlenaSize = 1 << 30

// DatumStream decodes the dense values of one column block. Null rows
// take no bytes.
type DatumStream struct {
	typ   *common.TypeInfo
	data  []byte
	nulls util.Bitmap
	rows  int

	//logical row of the next Get
	logical int
	//number of non-null values decoded
	physicalIndex int
	cursor        int

	delta bool
	acc   int64
}

func NewDatumStream(typ *common.TypeInfo, data []byte, nulls util.Bitmap, rows int) *DatumStream {
	return &DatumStream{
		typ:   typ,
		data:  data,
		nulls: nulls,
		rows:  rows,
	}
}

func NewBlockStream(typ *common.TypeInfo, blk *datum.Block) *DatumStream {
	ds := NewDatumStream(typ, blk.Data, blk.Nulls, blk.Rows)
	if blk.IsDelta() {
		ds.delta = true
		ds.acc = blk.DeltaBase
	}
	return ds
}

func (ds *DatumStream) Cursor() int {
	return ds.cursor
}

func (ds *DatumStream) PhysicalIndex() int {
	return ds.physicalIndex
}

// Remaining is the number of logical rows not decoded yet.
func (ds *DatumStream) Remaining() int {
	return ds.rows - ds.logical
}

// Get decodes the next n rows into col slots [start, start+n).
func (ds *DatumStream) Get(col *Column, start, n int) error {
	util.AssertFunc(n <= ds.Remaining())
	util.AssertFunc(start+n <= col.Cap())
	for i := 0; i < n; i++ {
		r := start + i
		if !ds.nulls.RowIsValid(uint64(ds.logical)) {
			col.Nulls[r] = true
			ds.logical++
			continue
		}
		var err error
		switch {
		case ds.delta:
			err = ds.fetchDelta(col, r)
		case inlineWidth(ds.typ):
			err = ds.fetchFixed(col, r)
		case ds.typ.IsVarlena():
			err = ds.fetchVarlena(col, r)
		case ds.typ.Len == common.LenCString:
			err = ds.fetchCString(col, r)
		default:
			err = ds.fetchGeneric(col, r)
		}
		if err != nil {
			return err
		}
		col.Nulls[r] = false
		ds.physicalIndex++
		ds.logical++
	}
	if start+n > col.Dim {
		col.Dim = start + n
	}
	return nil
}

func (ds *DatumStream) need(size int) error {
	if size < 0 || ds.cursor+size > len(ds.data) {
		return errors.Wrapf(datum.ErrCorrupt,
			"value %d: %d bytes at %d beyond block of %d bytes",
			ds.physicalIndex, size, ds.cursor, len(ds.data))
	}
	return nil
}

// fetchFixed loads 1/2/4/8 byte values. 8 byte values may be 4 aligned.
func (ds *DatumStream) fetchFixed(col *Column, r int) error {
	width := ds.typ.Len
	if err := ds.need(width); err != nil {
		return err
	}
	required := width
	if width == 8 {
		required = 4
	}
	if !util.IsAligned(ds.cursor, required) {
		return errors.Wrapf(datum.ErrCorrupt,
			"value %d: offset %d not aligned to %d", ds.physicalIndex, ds.cursor, required)
	}
	ptr := util.PointerAdd(util.BytesSliceToPointer(ds.data), ds.cursor)
	switch width {
	case 1:
		col.Data[r] = ds.data[ds.cursor]
	case 2:
		util.ToSlice[uint16](col.Data, 2)[r] = util.Load[uint16](ptr)
	case 4:
		util.ToSlice[uint32](col.Data, 4)[r] = util.Load[uint32](ptr)
	case 8:
		if util.AddressAligned(ds.data, ds.cursor, 8) {
			util.ToSlice[uint64](col.Data, 8)[r] = util.Load[uint64](ptr)
		} else {
			util.ToSlice[uint64](col.Data, 8)[r] = binary.LittleEndian.Uint64(ds.data[ds.cursor:])
		}
	}
	ds.cursor += width
	return nil
}

// fetchDelta rebuilds a value from the running accumulator. Deltas are
// 4 byte signed integers.
func (ds *DatumStream) fetchDelta(col *Column, r int) error {
	if err := ds.need(4); err != nil {
		return err
	}
	if !util.IsAligned(ds.cursor, 4) {
		return errors.Wrapf(datum.ErrCorrupt, "delta %d: offset %d not aligned", ds.physicalIndex, ds.cursor)
	}
	d := int32(binary.LittleEndian.Uint32(ds.data[ds.cursor:]))
	ds.acc += int64(d)
	switch ds.typ.Len {
	case 4:
		util.ToSlice[int32](col.Data, 4)[r] = int32(ds.acc)
	case 8:
		util.ToSlice[int64](col.Data, 8)[r] = ds.acc
	default:
		return errors.Wrapf(datum.ErrCorrupt, "delta encoding for %d byte type %s", ds.typ.Len, ds.typ.Name)
	}
	ds.cursor += 4
	return nil
}

func (ds *DatumStream) fetchVarlena(col *Column, r int) error {
	size, hsz, err := datum.VarSize(ds.data, ds.cursor)
	if err != nil {
		return errors.WithMessagef(err, "value %d", ds.physicalIndex)
	}
	if size > maxVarlenaSize {
		return errors.Wrapf(datum.ErrCorrupt, "value %d: varlena length %d too large", ds.physicalIndex, size)
	}
	if err = ds.need(size); err != nil {
		return err
	}
	col.RefBytes(r, ds.data[ds.cursor+hsz:ds.cursor+size])
	ds.cursor += size
	//zero bytes before the next value are alignment padding
	if ds.cursor < len(ds.data) && ds.data[ds.cursor] == 0 {
		ds.cursor = datum.AlignNominal(ds.cursor, ds.typ.Align)
	}
	return nil
}

func (ds *DatumStream) fetchCString(col *Column, r int) error {
	if err := ds.need(1); err != nil {
		return err
	}
	idx := bytes.IndexByte(ds.data[ds.cursor:], 0)
	if idx < 0 {
		return errors.Wrapf(datum.ErrCorrupt, "value %d: unterminated cstring", ds.physicalIndex)
	}
	col.RefBytes(r, ds.data[ds.cursor:ds.cursor+idx])
	ds.cursor += idx + 1
	return nil
}

func (ds *DatumStream) fetchGeneric(col *Column, r int) error {
	ds.cursor = datum.AlignNominal(ds.cursor, ds.typ.Align)
	if err := ds.need(ds.typ.Len); err != nil {
		return err
	}
	col.RefBytes(r, ds.data[ds.cursor:ds.cursor+ds.typ.Len])
	ds.cursor += ds.typ.Len
	return nil
}
