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
	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/util"
)

// Column holds one attribute for every row slot of a batch.
// Fixed width values up to 8 bytes live in Data at their native width,
// everything else in Refs.
type Column struct {
	Typ   *common.TypeInfo
	Data  []byte
	Refs  [][]byte
	Nulls []bool
	Dim   int

	arena []byte
	_cap  int
}

func NewColumn(typ *common.TypeInfo, cap int) *Column {
	col := &Column{
		Typ:   typ,
		Nulls: make([]bool, cap),
		_cap:  cap,
	}
	if inlineWidth(typ) {
		col.Data = make([]byte, cap*8)
	} else {
		col.Refs = make([][]byte, cap)
	}
	return col
}

func inlineWidth(typ *common.TypeInfo) bool {
	switch typ.Len {
	case 1, 2, 4, 8:
		return true
	default:
		return false
	}
}

func (col *Column) Cap() int {
	return col._cap
}

// Inline reports whether values are stored in Data.
func (col *Column) Inline() bool {
	return col.Data != nil
}

// Reset forgets the values but keeps the arrays.
func (col *Column) Reset() {
	col.Dim = 0
	col.arena = col.arena[:0]
}

func GetSlice[T any](col *Column) []T {
	var zero T
	return util.ToSlice[T](col.Data, sizeOf(zero))
}

func sizeOf[T any](v T) int {
	switch any(v).(type) {
	case bool, int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	default:
		return 8
	}
}

func (col *Column) SetNull(i int, null bool) {
	col.Nulls[i] = null
}

func (col *Column) IsNull(i int) bool {
	return col.Nulls[i]
}

// RefBytes aliases b. The owner of b must outlive the batch contents.
func (col *Column) RefBytes(i int, b []byte) {
	col.Refs[i] = b
}

// SetBytes copies b into memory owned by the column.
func (col *Column) SetBytes(i int, b []byte) {
	start := len(col.arena)
	col.arena = append(col.arena, b...)
	col.Refs[i] = col.arena[start:len(col.arena):len(col.arena)]
}

func (col *Column) Bytes(i int) []byte {
	return col.Refs[i]
}

// Int64 reads an integer like slot at its stored width.
func (col *Column) Int64(i int) int64 {
	switch col.Typ.Len {
	case 1:
		return int64(int8(col.Data[i]))
	case 2:
		return int64(util.ToSlice[int16](col.Data, 2)[i])
	case 4:
		return int64(util.ToSlice[int32](col.Data, 4)[i])
	default:
		return util.ToSlice[int64](col.Data, 8)[i]
	}
}

func (col *Column) SetInt64(i int, v int64) {
	switch col.Typ.Len {
	case 1:
		col.Data[i] = byte(int8(v))
	case 2:
		util.ToSlice[int16](col.Data, 2)[i] = int16(v)
	case 4:
		util.ToSlice[int32](col.Data, 4)[i] = int32(v)
	default:
		util.ToSlice[int64](col.Data, 8)[i] = v
	}
}

func (col *Column) Float64(i int) float64 {
	if col.Typ.Len == 4 {
		return float64(util.ToSlice[float32](col.Data, 4)[i])
	}
	return util.ToSlice[float64](col.Data, 8)[i]
}

func (col *Column) SetFloat64(i int, v float64) {
	if col.Typ.Len == 4 {
		util.ToSlice[float32](col.Data, 4)[i] = float32(v)
		return
	}
	util.ToSlice[float64](col.Data, 8)[i] = v
}

func (col *Column) Bool(i int) bool {
	return col.Data[i] != 0
}

func (col *Column) SetBool(i int, v bool) {
	if v {
		col.Data[i] = 1
	} else {
		col.Data[i] = 0
	}
}

// GetValue copies slot i out as a row value.
func (col *Column) GetValue(i int) common.Value {
	if col.Nulls[i] {
		return common.NullValue(col.Typ)
	}
	val := common.Value{Typ: col.Typ}
	switch col.Typ.Kind {
	case common.KindFloat:
		val.F64 = col.Float64(i)
	case common.KindBool:
		val.Bool = col.Bool(i)
	case common.KindString, common.KindNumeric:
		val.Str = string(col.Refs[i])
	default:
		if col.Inline() {
			val.I64 = col.Int64(i)
		} else {
			val.Str = string(col.Refs[i])
		}
	}
	return val
}

func (col *Column) SetValue(i int, val common.Value) {
	col.Nulls[i] = val.IsNull
	if val.IsNull {
		return
	}
	switch col.Typ.Kind {
	case common.KindFloat:
		col.SetFloat64(i, val.F64)
	case common.KindBool:
		col.SetBool(i, val.Bool)
	case common.KindString, common.KindNumeric:
		col.SetBytes(i, util.UnsafeStringToBytes(val.Str))
	default:
		if col.Inline() {
			col.SetInt64(i, val.I64)
		} else {
			col.SetBytes(i, util.UnsafeStringToBytes(val.Str))
		}
	}
}

// CopyFrom deep copies the first count slots of src.
func (col *Column) CopyFrom(src *Column, count int) {
	util.AssertFunc(count <= col._cap)
	col.Reset()
	copy(col.Nulls[:count], src.Nulls[:count])
	if col.Inline() {
		width := col.Typ.Len
		copy(col.Data[:count*width], src.Data[:count*width])
	} else {
		for i := 0; i < count; i++ {
			if src.Nulls[i] {
				col.Refs[i] = nil
				continue
			}
			col.SetBytes(i, src.Refs[i])
		}
	}
	col.Dim = count
}

// Fill broadcasts one value into the first count slots.
func (col *Column) Fill(val common.Value, count int) {
	col.Reset()
	if count == 0 {
		return
	}
	col.SetValue(0, val)
	for i := 1; i < count; i++ {
		col.Nulls[i] = col.Nulls[0]
		if col.Inline() {
			width := col.Typ.Len
			copy(col.Data[i*width:(i+1)*width], col.Data[:width])
		} else {
			col.Refs[i] = col.Refs[0]
		}
	}
	col.Dim = count
}
