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

package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/btree"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/datum"
	"github.com/daviszhen/vexec/pkg/util"
)

// TID addresses a tuple by page and line pointer.
type TID struct {
	Blkno uint32
	Off   int
}

func (tid TID) String() string {
	return fmt.Sprintf("(%d,%d)", tid.Blkno, tid.Off)
}

// HeapRelation stores heap tuples on slotted pages. Shared relations
// account their pins in a BufferPool, temp relations have no pool.
type HeapRelation struct {
	name string
	desc *common.TupleDesc
	pool *BufferPool

	mu    sync.RWMutex
	pages btree.Map[uint32, *Page]
	last  *Page
}

func NewHeapRelation(name string, desc *common.TupleDesc, pool *BufferPool) *HeapRelation {
	util.AssertFunc(pool != nil)
	return &HeapRelation{name: name, desc: desc.Copy(), pool: pool}
}

// NewTempRelation makes a backend private relation.
func NewTempRelation(name string, desc *common.TupleDesc) *HeapRelation {
	return &HeapRelation{name: name, desc: desc.Copy()}
}

func (rel *HeapRelation) Name() string {
	return rel.name
}

func (rel *HeapRelation) Desc() *common.TupleDesc {
	return rel.desc.Copy()
}

func (rel *HeapRelation) Kind() RelKind {
	if rel.pool == nil {
		return RelTemp
	}
	return RelHeap
}

func (rel *HeapRelation) TupleFormat() datum.Format {
	if rel.pool == nil {
		return datum.FormatMinimal
	}
	return datum.FormatHeap
}

func (rel *HeapRelation) NPages() int {
	rel.mu.RLock()
	defer rel.mu.RUnlock()
	return rel.pages.Len()
}

// Page returns page blkno. Tests use it to inspect pin counts.
func (rel *HeapRelation) Page(blkno uint32) (*Page, bool) {
	rel.mu.RLock()
	defer rel.mu.RUnlock()
	return rel.pages.Get(blkno)
}

func (rel *HeapRelation) Insert(xid uint32, values []common.Value) (TID, error) {
	if len(values) != rel.desc.Natts() {
		return TID{}, fmt.Errorf("relation %s has %d columns, got %d values",
			rel.name, rel.desc.Natts(), len(values))
	}
	tup := datum.FormHeapTuple(rel.desc, values, xid)
	if len(tup) > PageSize {
		return TID{}, fmt.Errorf("tuple of %d bytes exceeds page size", len(tup))
	}
	rel.mu.Lock()
	defer rel.mu.Unlock()
	if rel.last == nil || rel.last.freeSpace() < len(tup)+8 {
		rel.last = newPage(rel.pool, uint32(rel.pages.Len()))
		rel.pages.Set(rel.last.blkno, rel.last)
	}
	off := rel.last.addTuple(tup)
	if off < 0 {
		rel.last = newPage(rel.pool, uint32(rel.pages.Len()))
		rel.pages.Set(rel.last.blkno, rel.last)
		off = rel.last.addTuple(tup)
		util.AssertFunc(off >= 0)
	}
	return TID{Blkno: rel.last.blkno, Off: off}, nil
}

// Delete stamps xid as the deleter of tid. Conflicting deletes are not
// detected.
func (rel *HeapRelation) Delete(xid uint32, tid TID) error {
	rel.mu.Lock()
	defer rel.mu.Unlock()
	page, ok := rel.pages.Get(tid.Blkno)
	if !ok || tid.Off < 0 || tid.Off >= page.NTuples() {
		return fmt.Errorf("no tuple %v in relation %s", tid, rel.name)
	}
	datum.SetXmax(page.tuple(tid.Off), xid)
	return nil
}

// pageAt returns page blkno and its tuple count at the time of the call.
func (rel *HeapRelation) pageAt(blkno uint32) (*Page, int, bool) {
	rel.mu.RLock()
	defer rel.mu.RUnlock()
	page, ok := rel.pages.Get(blkno)
	if !ok {
		return nil, 0, false
	}
	return page, page.NTuples(), true
}

func (rel *HeapRelation) tupleAt(page *Page, off int) []byte {
	rel.mu.RLock()
	defer rel.mu.RUnlock()
	return page.tuple(off)
}

func (rel *HeapRelation) BeginScan(snap *Snapshot) PageScan {
	return &heapScan{rel: rel, snap: snap}
}

// heapScan walks pages in block order. It pins the page it is reading
// and drops the pin when it moves on.
type heapScan struct {
	rel   *HeapRelation
	snap  *Snapshot
	blkno uint32
	page  *Page
	ntup  int
	off   int
	done  bool
}

func (scan *heapScan) Next(ctx context.Context) (Tuple, bool, error) {
	for !scan.done {
		if scan.page == nil {
			if err := ctx.Err(); err != nil {
				return Tuple{}, false, err
			}
			page, ntup, ok := scan.rel.pageAt(scan.blkno)
			if !ok {
				scan.done = true
				break
			}
			page.Pin()
			scan.page = page
			scan.ntup = ntup
			scan.off = 0
		}
		for scan.off < scan.ntup {
			tup := scan.rel.tupleAt(scan.page, scan.off)
			scan.off++
			if err := util.Inject(util.FAULTS_SCOPE_STORAGE, FaultNextVisibleRow); err != nil {
				return Tuple{}, false, err
			}
			hdr, err := datum.ReadHeader(tup, datum.FormatHeap)
			if err != nil {
				return Tuple{}, false, err
			}
			if !scan.snap.Visible(hdr.Xmin, hdr.Xmax) {
				continue
			}
			if scan.rel.pool == nil {
				min, err := datum.HeapToMinimal(tup)
				if err != nil {
					return Tuple{}, false, err
				}
				return Tuple{Data: min, Format: datum.FormatMinimal}, true, nil
			}
			return Tuple{Data: tup, Page: scan.page, Format: datum.FormatHeap}, true, nil
		}
		scan.dropPage()
		scan.blkno++
	}
	return Tuple{}, false, nil
}

func (scan *heapScan) dropPage() {
	if scan.page != nil {
		scan.page.Unpin()
		scan.page = nil
	}
}

func (scan *heapScan) Rescan() {
	scan.dropPage()
	scan.blkno = 0
	scan.off = 0
	scan.ntup = 0
	scan.done = false
}

func (scan *heapScan) End() {
	scan.dropPage()
	scan.done = true
}
