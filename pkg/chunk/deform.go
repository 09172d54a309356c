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

	"github.com/pkg/errors"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/datum"
)

// Deformer decodes attributes out of heap or minimal tuples. It owns a
// copy of the descriptor and the cached attribute offsets.
type Deformer struct {
	desc   *common.TupleDesc
	format datum.Format
	// cacheOff[i] is the data offset of attribute i for tuples without
	// nulls, or -1 when an earlier attribute has variable width.
	cacheOff []int
}

func NewDeformer(desc *common.TupleDesc, format datum.Format) *Deformer {
	d := &Deformer{
		desc:     desc.Copy(),
		format:   format,
		cacheOff: make([]int, desc.Natts()),
	}
	off := 0
	for i, attr := range d.desc.Attrs {
		if off < 0 {
			d.cacheOff[i] = -1
			continue
		}
		aligned := datum.AlignNominal(off, attr.Typ.Align)
		if !attr.Typ.IsFixed() && aligned != off {
			//a short varlena would start before the aligned offset
			d.cacheOff[i] = -1
			off = -1
			continue
		}
		off = aligned
		d.cacheOff[i] = off
		if attr.Typ.IsFixed() {
			off += attr.Typ.Len
		} else {
			off = -1
		}
	}
	return d
}

func (d *Deformer) Desc() *common.TupleDesc {
	return d.desc
}

func (d *Deformer) Format() datum.Format {
	return d.format
}

// attStart aligns off for an attribute about to be read. A varlena may
// start unaligned when it carries a short header.
func attStart(data []byte, off int, typ *common.TypeInfo) int {
	if typ.IsVarlena() {
		if off < len(data) && data[off] != 0 {
			return off
		}
	}
	if typ.Len == common.LenCString {
		return off
	}
	return datum.AlignNominal(off, typ.Align)
}

// attEnd returns the offset after the attribute value at off.
func attEnd(data []byte, off int, typ *common.TypeInfo) (int, error) {
	switch typ.Len {
	case common.LenVarlena:
		size, _, err := datum.VarSize(data, off)
		if err != nil {
			return 0, err
		}
		if off+size > len(data) {
			return 0, errors.Wrapf(datum.ErrCorrupt, "varlena of %d bytes at %d beyond tuple end %d", size, off, len(data))
		}
		return off + size, nil
	case common.LenCString:
		idx := bytes.IndexByte(data[off:], 0)
		if idx < 0 {
			return 0, errors.Wrapf(datum.ErrCorrupt, "unterminated cstring at %d", off)
		}
		return off + idx + 1, nil
	default:
		if off+typ.Len > len(data) {
			return 0, errors.Wrapf(datum.ErrCorrupt, "value of %d bytes at %d beyond tuple end %d", typ.Len, off, len(data))
		}
		return off + typ.Len, nil
	}
}

// attOffset finds the start of attribute att, which must not be null.
func (d *Deformer) attOffset(data []byte, hdr *datum.Header, att int) (int, error) {
	if !hdr.HasNulls() && d.cacheOff[att] >= 0 {
		return d.cacheOff[att], nil
	}
	off := 0
	for i := 0; i < att; i++ {
		if hdr.AttIsNull(i) {
			continue
		}
		typ := d.desc.Attrs[i].Typ
		off = attStart(data, off, typ)
		end, err := attEnd(data, off, typ)
		if err != nil {
			return 0, err
		}
		off = end
	}
	return attStart(data, off, d.desc.Attrs[att].Typ), nil
}

// storeAttr puts the value at off into col slot r. By-reference values
// alias data.
func storeAttr(col *Column, r int, data []byte, off int, typ *common.TypeInfo) error {
	end, err := attEnd(data, off, typ)
	if err != nil {
		return err
	}
	col.Nulls[r] = false
	switch typ.Len {
	case common.LenVarlena:
		_, hsz, _ := datum.VarSize(data, off)
		col.RefBytes(r, data[off+hsz:end])
	case common.LenCString:
		col.RefBytes(r, data[off:end-1])
	default:
		if col.Inline() {
			copy(col.Data[r*typ.Len:(r+1)*typ.Len], data[off:end])
		} else {
			col.RefBytes(r, data[off:end])
		}
	}
	return nil
}

// DeformColumn decodes attribute att of tuples into col slots
// [from, from+len(tuples)).
func (d *Deformer) DeformColumn(tuples [][]byte, from int, att int, col *Column) error {
	for i, tup := range tuples {
		r := from + i
		hdr, err := datum.ReadHeader(tup, d.format)
		if err != nil {
			return err
		}
		if att >= hdr.Natts || hdr.AttIsNull(att) {
			col.Nulls[r] = true
			continue
		}
		data := tup[hdr.Hoff:]
		off, err := d.attOffset(data, &hdr, att)
		if err != nil {
			return err
		}
		if err = storeAttr(col, r, data, off, d.desc.Attrs[att].Typ); err != nil {
			return err
		}
	}
	return nil
}

// DeformRow decodes every attribute of one tuple into values.
func (d *Deformer) DeformRow(tup []byte, values []common.Value) error {
	hdr, err := datum.ReadHeader(tup, d.format)
	if err != nil {
		return err
	}
	data := tup[hdr.Hoff:]
	off := 0
	for i, attr := range d.desc.Attrs {
		if i >= hdr.Natts || hdr.AttIsNull(i) {
			values[i] = common.NullValue(attr.Typ)
			continue
		}
		off = attStart(data, off, attr.Typ)
		end, err := attEnd(data, off, attr.Typ)
		if err != nil {
			return err
		}
		values[i] = decodeValue(data[off:end], attr.Typ)
		off = end
	}
	return nil
}

func decodeValue(raw []byte, typ *common.TypeInfo) common.Value {
	var tmp Column
	tmp.Typ = typ
	tmp.Nulls = []bool{false}
	if inlineWidth(typ) {
		var buf [8]byte
		copy(buf[:], raw)
		tmp.Data = buf[:]
	} else {
		tmp.Refs = make([][]byte, 1)
		switch typ.Len {
		case common.LenVarlena:
			_, hsz, _ := datum.VarSize(raw, 0)
			tmp.Refs[0] = raw[hsz:]
		case common.LenCString:
			tmp.Refs[0] = raw[:len(raw)-1]
		default:
			tmp.Refs[0] = raw
		}
	}
	return tmp.GetValue(0)
}
