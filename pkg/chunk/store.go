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
	"github.com/daviszhen/vexec/pkg/datum"
)

// StoreKind tells where the rows of a batch live.
type StoreKind int

const (
	// StoreVirtual batches own their column arrays only.
	StoreVirtual StoreKind = iota
	// StoreHeap batches own copies of heap tuples.
	StoreHeap
	// StoreMinimal batches own copies of minimal tuples.
	StoreMinimal
	// StoreBuffer batches alias heap tuples on pinned pages.
	StoreBuffer
)

func (kind StoreKind) String() string {
	switch kind {
	case StoreVirtual:
		return "virtual"
	case StoreHeap:
		return "heap"
	case StoreMinimal:
		return "minimal"
	case StoreBuffer:
		return "buffer"
	default:
		return fmt.Sprintf("store(%d)", int(kind))
	}
}

type slotStore interface {
	kind() StoreKind
	clear()
	storeTuple(tup []byte, page Pinnable)
	fetchColumn(b *Batch, j int) error
	materialize(b *Batch) error
	release()
	pins() int
}

var (
	_ slotStore = &virtualStore{}
	_ slotStore = &heapStore{}
	_ slotStore = &minimalStore{}
	_ slotStore = &bufferStore{}
)

type virtualStore struct{}

func (vs *virtualStore) kind() StoreKind { return StoreVirtual }

func (vs *virtualStore) clear() {}

func (vs *virtualStore) storeTuple([]byte, Pinnable) {
	panic("store tuple into virtual batch")
}

func (vs *virtualStore) fetchColumn(*Batch, int) error { return nil }

func (vs *virtualStore) materialize(*Batch) error { return nil }

func (vs *virtualStore) release() {}

func (vs *virtualStore) pins() int { return 0 }

// tupleSlots keeps stored tuples and decodes columns lazily. hwm[j] is
// the number of leading rows already decoded into column j.
type tupleSlots struct {
	deformer *Deformer
	tuples   [][]byte
	hwm      []int
}

func newTupleSlots(desc *common.TupleDesc, format datum.Format, cap int) tupleSlots {
	return tupleSlots{
		deformer: NewDeformer(desc, format),
		tuples:   make([][]byte, 0, cap),
		hwm:      make([]int, desc.Natts()),
	}
}

func (ts *tupleSlots) reset() {
	for i := range ts.tuples {
		ts.tuples[i] = nil
	}
	ts.tuples = ts.tuples[:0]
	for j := range ts.hwm {
		ts.hwm[j] = 0
	}
}

func (ts *tupleSlots) fetchColumn(b *Batch, j int) error {
	from := ts.hwm[j]
	if from >= len(ts.tuples) {
		return nil
	}
	col := b.Cols[j]
	err := ts.deformer.DeformColumn(ts.tuples[from:], from, j, col)
	if err != nil {
		return err
	}
	ts.hwm[j] = len(ts.tuples)
	col.Dim = len(ts.tuples)
	return nil
}

func (ts *tupleSlots) materialize(b *Batch) error {
	for j := range b.Cols {
		if err := ts.fetchColumn(b, j); err != nil {
			return err
		}
	}
	return nil
}

// ownedTuples copies tuples into an arena reused across batches.
type ownedTuples struct {
	tupleSlots
	arena []byte
}

func (ot *ownedTuples) storeTuple(tup []byte, _ Pinnable) {
	start := len(ot.arena)
	ot.arena = append(ot.arena, tup...)
	ot.tuples = append(ot.tuples, ot.arena[start:len(ot.arena):len(ot.arena)])
}

func (ot *ownedTuples) clear() {
	ot.reset()
	ot.arena = ot.arena[:0]
}

type heapStore struct {
	ownedTuples
}

func (hs *heapStore) kind() StoreKind { return StoreHeap }

func (hs *heapStore) release() { hs.arena = nil }

func (hs *heapStore) pins() int { return 0 }

type minimalStore struct {
	ownedTuples
}

func (ms *minimalStore) kind() StoreKind { return StoreMinimal }

func (ms *minimalStore) release() { ms.arena = nil }

func (ms *minimalStore) pins() int { return 0 }

// bufferStore aliases tuples on shared pages and keeps them pinned
// until the batch is cleared.
type bufferStore struct {
	tupleSlots
	pinSet PinSet
}

func (bs *bufferStore) kind() StoreKind { return StoreBuffer }

func (bs *bufferStore) storeTuple(tup []byte, page Pinnable) {
	bs.pinSet.Hold(page)
	bs.tuples = append(bs.tuples, tup)
}

func (bs *bufferStore) clear() {
	bs.reset()
	bs.pinSet.ReleaseAll()
}

func (bs *bufferStore) release() {
	bs.pinSet.ReleaseAll()
}

func (bs *bufferStore) pins() int { return bs.pinSet.Len() }

func newTupleStore(kind StoreKind, desc *common.TupleDesc, cap int) slotStore {
	switch kind {
	case StoreHeap:
		return &heapStore{ownedTuples{tupleSlots: newTupleSlots(desc, datum.FormatHeap, cap)}}
	case StoreMinimal:
		return &minimalStore{ownedTuples{tupleSlots: newTupleSlots(desc, datum.FormatMinimal, cap)}}
	case StoreBuffer:
		return &bufferStore{tupleSlots: newTupleSlots(desc, datum.FormatHeap, cap)}
	default:
		panic(fmt.Sprintf("usp store kind %s", kind))
	}
}
