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

package util

// Bitmap is a validity bitmap: a set bit marks a non-null value.
// An empty bitmap means every value is valid.
type Bitmap struct {
	Bits []uint8
}

// Init allocates space for count rows, all valid.
func (bm *Bitmap) Init(count int) {
	bm.Bits = make([]uint8, EntryCount(count))
	for i := range bm.Bits {
		bm.Bits[i] = 0xFF
	}
}

// Wrap aliases an encoded bitmap without copying it.
func (bm *Bitmap) Wrap(bits []uint8) {
	bm.Bits = bits
}

func (bm *Bitmap) Invalid() bool {
	return len(bm.Bits) == 0
}

func (bm *Bitmap) AllValid() bool {
	return bm.Invalid()
}

func GetEntryIndex(idx uint64) (uint64, uint64) {
	return idx / 8, idx % 8
}

func EntryIsSet(e uint8, pos uint64) bool {
	return e&(1<<pos) != 0
}

func (bm *Bitmap) RowIsValid(idx uint64) bool {
	if bm.Invalid() {
		return true
	}
	eIdx, pos := GetEntryIndex(idx)
	return EntryIsSet(bm.Bits[eIdx], pos)
}

func (bm *Bitmap) SetValid(ridx uint64) {
	if bm.Invalid() {
		return
	}
	eIdx, pos := GetEntryIndex(ridx)
	bm.Bits[eIdx] |= 1 << pos
}

// SetInvalid needs space prepared by Init when the bitmap is empty.
func (bm *Bitmap) SetInvalid(ridx uint64) {
	AssertFunc(!bm.Invalid())
	eIdx, pos := GetEntryIndex(ridx)
	bm.Bits[eIdx] &= ^(1 << pos)
}

func (bm *Bitmap) Set(ridx uint64, valid bool) {
	if valid {
		bm.SetValid(ridx)
	} else {
		bm.SetInvalid(ridx)
	}
}

// CountValid counts the valid rows in [0,count).
func (bm *Bitmap) CountValid(count int) int {
	if bm.Invalid() {
		return count
	}
	n := 0
	for i := 0; i < count; i++ {
		if bm.RowIsValid(uint64(i)) {
			n++
		}
	}
	return n
}

func EntryCount(cnt int) int {
	return (cnt + 7) / 8
}
