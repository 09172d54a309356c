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
	"fmt"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/util"
)

// Batch is a fixed capacity group of rows stored column-wise. Skip
// marks rows that do not exist or were filtered out. A batch is
// allocated once per operator and reused through Clear.
type Batch struct {
	Cols  []*Column
	Skip  []bool
	Count int
	// Finished marks the last batch of a scan.
	Finished bool

	_cap  int
	store slotStore
}

// NewBatch makes a virtual batch whose columns are written directly.
func NewBatch(types []*common.TypeInfo, cap int) *Batch {
	util.AssertFunc(cap > 0)
	b := &Batch{
		Cols:  make([]*Column, len(types)),
		Skip:  make([]bool, cap),
		_cap:  cap,
		store: &virtualStore{},
	}
	for i, typ := range types {
		b.Cols[i] = NewColumn(typ, cap)
	}
	b.Clear()
	return b
}

// NewTupleBatch makes a batch filled by StoreTuple. types are the
// column types, desc the layout of the stored tuples.
func NewTupleBatch(types []*common.TypeInfo, cap int, kind StoreKind, desc *common.TupleDesc) *Batch {
	util.AssertFunc(kind != StoreVirtual)
	util.AssertFunc(len(types) == desc.Natts())
	b := NewBatch(types, cap)
	b.store = newTupleStore(kind, desc, cap)
	return b
}

func (b *Batch) Cap() int {
	return b._cap
}

func (b *Batch) Kind() StoreKind {
	return b.store.kind()
}

func (b *Batch) Types() []*common.TypeInfo {
	ret := make([]*common.TypeInfo, len(b.Cols))
	for i, col := range b.Cols {
		ret[i] = col.Typ
	}
	return ret
}

// Clear empties the batch for reuse and drops every pin it holds.
func (b *Batch) Clear() {
	b.store.clear()
	b.Count = 0
	b.Finished = false
	for i := range b.Skip {
		b.Skip[i] = true
	}
	for _, col := range b.Cols {
		col.Reset()
	}
}

// Release tears the batch down.
func (b *Batch) Release() {
	b.Clear()
	b.store.release()
}

// AppendRow writes one row into a virtual batch.
func (b *Batch) AppendRow(values []common.Value) {
	util.AssertFunc(b.store.kind() == StoreVirtual)
	util.AssertFunc(b.Count < b._cap)
	util.AssertFunc(len(values) == len(b.Cols))
	for j, col := range b.Cols {
		col.SetValue(b.Count, values[j])
		col.Dim = b.Count + 1
	}
	b.Skip[b.Count] = false
	b.Count++
}

// StoreTuple adds a tuple to a tuple backed batch. page is the pinnable
// page holding tup for buffer backed batches and nil otherwise.
func (b *Batch) StoreTuple(tup []byte, page Pinnable) {
	util.AssertFunc(b.Count < b._cap)
	b.store.storeTuple(tup, page)
	b.Skip[b.Count] = false
	b.Count++
}

// SetCount publishes rows written straight into the columns.
func (b *Batch) SetCount(count int) {
	util.AssertFunc(count <= b._cap)
	b.Count = count
	for i := 0; i < b._cap; i++ {
		b.Skip[i] = i >= count
	}
}

func (b *Batch) MarkSkip(i int) {
	b.Skip[i] = true
}

// IsEmpty reports whether no row in [0,Count) survives.
func (b *Batch) IsEmpty() bool {
	for i := 0; i < b.Count; i++ {
		if !b.Skip[i] {
			return false
		}
	}
	return true
}

// Live counts the surviving rows.
func (b *Batch) Live() int {
	n := 0
	for i := 0; i < b.Count; i++ {
		if !b.Skip[i] {
			n++
		}
	}
	return n
}

// Column returns column j with every stored row decoded.
func (b *Batch) Column(j int) (*Column, error) {
	if j < 0 || j >= len(b.Cols) {
		return nil, fmt.Errorf("column %d out of range [0,%d)", j, len(b.Cols))
	}
	if err := b.store.fetchColumn(b, j); err != nil {
		return nil, err
	}
	return b.Cols[j], nil
}

// Materialize decodes every column.
func (b *Batch) Materialize() error {
	return b.store.materialize(b)
}

// Pins is the number of pins the batch holds.
func (b *Batch) Pins() int {
	return b.store.pins()
}
