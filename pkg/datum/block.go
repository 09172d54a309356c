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

// Datum stream block layout, little endian:
//
//	0  rows      u32  logical rows, nulls included
//	4  flags     u16
//	6  pad       u16
//	8  nullBytes u32  validity bitmap size, 0 without nulls
//	12 dataSize  u32
//	16 deltaBase i64
//	24 validity bitmap, then padding to 8, then data
const (
	BlockHeaderSize = 24

	BlockHasNulls uint16 = 0x0001
	BlockDelta    uint16 = 0x0002
)

// Block is a parsed datum stream block. Nulls and Data alias the
// encoded buffer.
type Block struct {
	Rows      int
	Flags     uint16
	Nulls     util.Bitmap
	Data      []byte
	DeltaBase int64
}

func (blk *Block) HasNulls() bool {
	return util.FlagIsSet(blk.Flags, BlockHasNulls)
}

func (blk *Block) IsDelta() bool {
	return util.FlagIsSet(blk.Flags, BlockDelta)
}

func ParseBlock(buf []byte) (*Block, error) {
	if len(buf) < BlockHeaderSize {
		return nil, errors.Wrapf(ErrCorrupt, "block of %d bytes shorter than header", len(buf))
	}
	blk := &Block{
		Rows:      int(binary.LittleEndian.Uint32(buf[0:])),
		Flags:     binary.LittleEndian.Uint16(buf[4:]),
		DeltaBase: int64(binary.LittleEndian.Uint64(buf[16:])),
	}
	nullBytes := int(binary.LittleEndian.Uint32(buf[8:]))
	dataSize := int(binary.LittleEndian.Uint32(buf[12:]))
	off := BlockHeaderSize
	if blk.HasNulls() {
		if nullBytes != util.EntryCount(blk.Rows) {
			return nil, errors.Wrapf(ErrCorrupt, "null bitmap of %d bytes for %d rows", nullBytes, blk.Rows)
		}
		if off+nullBytes > len(buf) {
			return nil, errors.Wrapf(ErrCorrupt, "null bitmap beyond block end")
		}
		blk.Nulls.Wrap(buf[off : off+nullBytes])
		off += nullBytes
	} else if nullBytes != 0 {
		return nil, errors.Wrapf(ErrCorrupt, "null bitmap present without null flag")
	}
	off = util.AlignValue8(off)
	if dataSize < 0 || off+dataSize > len(buf) {
		return nil, errors.Wrapf(ErrCorrupt, "data of %d bytes beyond block end", dataSize)
	}
	blk.Data = buf[off : off+dataSize]
	return blk, nil
}

// BlockWriter encodes the values of one column into blocks.
type BlockWriter struct {
	typ       *common.TypeInfo
	rowsLimit int
	tryDelta  bool

	rows  int
	nulls []bool
	vals  []common.Value
}

func NewBlockWriter(typ *common.TypeInfo, rowsLimit int, tryDelta bool) *BlockWriter {
	util.AssertFunc(rowsLimit > 0)
	return &BlockWriter{
		typ:       typ,
		rowsLimit: rowsLimit,
		tryDelta:  tryDelta && typ.Kind == common.KindInt && (typ.Len == 4 || typ.Len == 8),
	}
}

func (w *BlockWriter) Full() bool {
	return w.rows >= w.rowsLimit
}

func (w *BlockWriter) Rows() int {
	return w.rows
}

func (w *BlockWriter) Append(val common.Value) {
	util.AssertFunc(!w.Full())
	w.nulls = append(w.nulls, val.IsNull)
	if !val.IsNull {
		w.vals = append(w.vals, val)
	}
	w.rows++
}

// Flush encodes the pending rows and resets the writer.
func (w *BlockWriter) Flush() []byte {
	var flags uint16
	hasNull := len(w.vals) != w.rows
	if hasNull {
		flags |= BlockHasNulls
	}
	var data []byte
	var base int64
	if deltas, ok := w.deltas(); ok {
		flags |= BlockDelta
		base = w.vals[0].I64
		data = make([]byte, 0, 4*len(deltas))
		for _, d := range deltas {
			data = binary.LittleEndian.AppendUint32(data, uint32(d))
		}
	} else {
		for _, val := range w.vals {
			data = AppendDatum(data, w.typ, val)
		}
	}

	nullBytes := 0
	if hasNull {
		nullBytes = util.EntryCount(w.rows)
	}
	dataOff := util.AlignValue8(BlockHeaderSize + nullBytes)
	buf := make([]byte, dataOff+len(data))
	binary.LittleEndian.PutUint32(buf[0:], uint32(w.rows))
	binary.LittleEndian.PutUint16(buf[4:], flags)
	binary.LittleEndian.PutUint32(buf[8:], uint32(nullBytes))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(data)))
	binary.LittleEndian.PutUint64(buf[16:], uint64(base))
	if hasNull {
		bits := buf[BlockHeaderSize : BlockHeaderSize+nullBytes]
		for i, isNull := range w.nulls {
			if !isNull {
				bits[i/8] |= 1 << (i % 8)
			}
		}
	}
	copy(buf[dataOff:], data)

	w.rows = 0
	w.nulls = w.nulls[:0]
	w.vals = w.vals[:0]
	return buf
}

// deltas reports the per value differences when all of them fit in 32
// bits. The first delta is zero against the block base.
func (w *BlockWriter) deltas() ([]int32, bool) {
	if !w.tryDelta || len(w.vals) < 2 {
		return nil, false
	}
	ret := make([]int32, len(w.vals))
	prev := w.vals[0].I64
	for i, val := range w.vals {
		d := val.I64 - prev
		if d < math.MinInt32 || d > math.MaxInt32 {
			return nil, false
		}
		ret[i] = int32(d)
		prev = val.I64
	}
	return ret, true
}
