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

	"github.com/RoaringBitmap/roaring"
	hll "github.com/axiomhq/hyperloglog"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/datum"
	"github.com/daviszhen/vexec/pkg/util"
)

const DefaultBlockRows = 4096

type columnSegment struct {
	typ    *common.TypeInfo
	blocks [][]byte
	writer *datum.BlockWriter
	//distinct values, pending rows included
	ndv *hll.Sketch
}

// ColumnRelation is an append only column store. Every column is kept
// as a list of encoded blocks and all columns cut blocks at the same
// rows. Deleted row numbers live in the visimap.
type ColumnRelation struct {
	name      string
	desc      *common.TupleDesc
	blockRows int

	mu      sync.RWMutex
	segs    []*columnSegment
	rows    int
	pending int
	visimap *roaring.Bitmap
}

func NewColumnRelation(name string, desc *common.TupleDesc, blockRows int) *ColumnRelation {
	if blockRows <= 0 {
		blockRows = DefaultBlockRows
	}
	rel := &ColumnRelation{
		name:      name,
		desc:      desc.Copy(),
		blockRows: blockRows,
		visimap:   roaring.New(),
	}
	for _, attr := range rel.desc.Attrs {
		rel.segs = append(rel.segs, &columnSegment{
			typ:    attr.Typ,
			writer: datum.NewBlockWriter(attr.Typ, blockRows, true),
			ndv:    hll.New14(),
		})
	}
	return rel
}

func (rel *ColumnRelation) Name() string {
	return rel.name
}

func (rel *ColumnRelation) Desc() *common.TupleDesc {
	return rel.desc.Copy()
}

func (rel *ColumnRelation) Kind() RelKind {
	return RelColumn
}

func (rel *ColumnRelation) TupleFormat() datum.Format {
	return datum.FormatHeap
}

// Append adds one row. It becomes visible to scans once its block is
// flushed.
func (rel *ColumnRelation) Append(values []common.Value) error {
	if len(values) != len(rel.segs) {
		return fmt.Errorf("relation %s has %d columns, got %d values",
			rel.name, len(rel.segs), len(values))
	}
	rel.mu.Lock()
	defer rel.mu.Unlock()
	for i, seg := range rel.segs {
		seg.writer.Append(values[i])
		if !values[i].IsNull {
			seg.ndv.Insert([]byte(values[i].String()))
		}
	}
	rel.pending++
	if rel.pending == rel.blockRows {
		rel.flushLocked()
	}
	return nil
}

func (rel *ColumnRelation) Flush() {
	rel.mu.Lock()
	defer rel.mu.Unlock()
	rel.flushLocked()
}

func (rel *ColumnRelation) flushLocked() {
	if rel.pending == 0 {
		return
	}
	for _, seg := range rel.segs {
		seg.blocks = append(seg.blocks, seg.writer.Flush())
	}
	rel.rows += rel.pending
	rel.pending = 0
}

// Rows is the number of flushed rows, deleted ones included.
func (rel *ColumnRelation) Rows() int {
	rel.mu.RLock()
	defer rel.mu.RUnlock()
	return rel.rows
}

// DistinctEstimate estimates the number of distinct non null values
// ever appended to column attno. Deletes do not lower it.
func (rel *ColumnRelation) DistinctEstimate(attno int) uint64 {
	rel.mu.RLock()
	defer rel.mu.RUnlock()
	if attno < 0 || attno >= len(rel.segs) {
		return 0
	}
	return rel.segs[attno].ndv.Estimate()
}

// Delete hides row from scans that begin afterwards.
func (rel *ColumnRelation) Delete(row int) error {
	rel.mu.Lock()
	defer rel.mu.Unlock()
	if row < 0 || row >= rel.rows {
		return fmt.Errorf("no row %d in relation %s", row, rel.name)
	}
	rel.visimap.Add(uint32(row))
	return nil
}

// BeginColumnScan decodes only the columns at attnos.
func (rel *ColumnRelation) BeginColumnScan(attnos []int) *ColumnScan {
	rel.mu.RLock()
	defer rel.mu.RUnlock()
	scan := &ColumnScan{
		total:   rel.rows,
		visimap: rel.visimap.Clone(),
	}
	for _, attno := range attnos {
		util.AssertFunc(attno >= 0 && attno < len(rel.segs))
		seg := rel.segs[attno]
		scan.typs = append(scan.typs, seg.typ)
		scan.blocks = append(scan.blocks, seg.blocks[:len(seg.blocks):len(seg.blocks)])
	}
	return scan
}

// BeginScan returns the rows as frozen heap tuples. Deletes are
// applied through the visimap, so snap is not consulted.
func (rel *ColumnRelation) BeginScan(snap *Snapshot) PageScan {
	attnos := make([]int, len(rel.segs))
	for i := range attnos {
		attnos[i] = i
	}
	return &columnRowScan{
		desc:  rel.desc,
		cols:  rel.BeginColumnScan(attnos),
		batch: chunk.NewBatch(rel.desc.Types(), util.DefaultVectorSize),
	}
}

// ColumnScan decodes column blocks straight into batch columns.
type ColumnScan struct {
	typs    []*common.TypeInfo
	blocks  [][][]byte
	total   int
	visimap *roaring.Bitmap

	row     int
	blk     int
	streams []*chunk.DatumStream
}

func (scan *ColumnScan) Done() bool {
	return scan.row >= scan.total
}

// Fill decodes up to batch.Cap() rows into the first columns of batch
// and marks deleted rows skipped. It returns the number of rows. A scan
// of no columns only counts rows.
func (scan *ColumnScan) Fill(ctx context.Context, batch *chunk.Batch) (int, error) {
	util.AssertFunc(len(batch.Cols) >= len(scan.typs))
	first := scan.row
	n := 0
	if len(scan.typs) == 0 {
		//nothing to decode, only count rows
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n = min(batch.Cap(), scan.total-scan.row)
		scan.row += n
	}
	for n < batch.Cap() && scan.row < scan.total {
		if scan.streams == nil || scan.streams[0].Remaining() == 0 {
			if err := scan.loadBlock(ctx); err != nil {
				return 0, err
			}
		}
		k := min(batch.Cap()-n, scan.streams[0].Remaining())
		for j, ds := range scan.streams {
			if err := ds.Get(batch.Cols[j], n, k); err != nil {
				return 0, err
			}
		}
		n += k
		scan.row += k
	}
	batch.SetCount(n)
	for i := 0; i < n; i++ {
		if scan.visimap.Contains(uint32(first + i)) {
			batch.MarkSkip(i)
		}
	}
	return n, nil
}

func (scan *ColumnScan) loadBlock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := util.Inject(util.FAULTS_SCOPE_STORAGE, FaultNextVisibleRow); err != nil {
		return err
	}
	if scan.streams == nil {
		scan.streams = make([]*chunk.DatumStream, len(scan.typs))
	}
	rows := -1
	for j, typ := range scan.typs {
		if scan.blk >= len(scan.blocks[j]) {
			return fmt.Errorf("column %d has no block %d", j, scan.blk)
		}
		blk, err := datum.ParseBlock(scan.blocks[j][scan.blk])
		if err != nil {
			return err
		}
		if rows >= 0 && blk.Rows != rows {
			return fmt.Errorf("block %d has %d rows in column %d, expected %d", scan.blk, blk.Rows, j, rows)
		}
		rows = blk.Rows
		scan.streams[j] = chunk.NewBlockStream(typ, blk)
	}
	scan.blk++
	return nil
}

func (scan *ColumnScan) Rescan() {
	scan.row = 0
	scan.blk = 0
	scan.streams = nil
}

func (scan *ColumnScan) End() {
	scan.row = scan.total
	scan.streams = nil
}

// columnRowScan forms a heap tuple per live row.
type columnRowScan struct {
	desc  *common.TupleDesc
	cols  *ColumnScan
	batch *chunk.Batch
	pos   int
	vals  []common.Value
}

func (scan *columnRowScan) Next(ctx context.Context) (Tuple, bool, error) {
	for {
		for scan.pos < scan.batch.Count {
			i := scan.pos
			scan.pos++
			if scan.batch.Skip[i] {
				continue
			}
			scan.vals = scan.vals[:0]
			for _, col := range scan.batch.Cols {
				scan.vals = append(scan.vals, col.GetValue(i))
			}
			tup := datum.FormHeapTuple(scan.desc, scan.vals, FrozenXid)
			return Tuple{Data: tup, Format: datum.FormatHeap}, true, nil
		}
		if scan.cols.Done() {
			return Tuple{}, false, nil
		}
		scan.batch.Clear()
		scan.pos = 0
		if _, err := scan.cols.Fill(ctx, scan.batch); err != nil {
			return Tuple{}, false, err
		}
	}
}

func (scan *columnRowScan) Rescan() {
	scan.cols.Rescan()
	scan.batch.Clear()
	scan.pos = 0
}

func (scan *columnRowScan) End() {
	scan.cols.End()
	scan.batch.Clear()
	scan.pos = 0
}
