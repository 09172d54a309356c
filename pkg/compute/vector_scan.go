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

package compute

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/plan"
	"github.com/daviszhen/vexec/pkg/storage"
	"github.com/daviszhen/vexec/pkg/util"
)

type ScanPhase int

const (
	ScanNotStarted ScanPhase = iota
	ScanScanning
	// the batch holding the last rows has been returned
	ScanLastPartialEmitted
	ScanDone
)

func storeKindOf(kind storage.RelKind) chunk.StoreKind {
	switch kind {
	case storage.RelHeap:
		return chunk.StoreBuffer
	case storage.RelTemp:
		return chunk.StoreMinimal
	case storage.RelColumn:
		return chunk.StoreHeap
	default:
		panic("usp")
	}
}

// referencedAttrs lists the relation columns read by the targets and
// quals in attno order. nil targets read every column.
func referencedAttrs(op *plan.PlanNode, natts int) []int {
	used := make([]bool, natts)
	if op.Targets == nil {
		for i := range used {
			used[i] = true
		}
	}
	mark := func(e *plan.Expr) error {
		if e.Typ == plan.ET_Var {
			used[e.AttNo] = true
		}
		return nil
	}
	for _, e := range op.Targets {
		_ = e.Walk(mark)
	}
	for _, e := range op.Quals {
		_ = e.Walk(mark)
	}
	ret := make([]int, 0, natts)
	for i, u := range used {
		if u {
			ret = append(ret, i)
		}
	}
	return ret
}

func (run *Runner) vscanInit() error {
	st := &run.state.OprVScanState
	rel, err := run.env.Catalog.Lookup(run.op.Relation)
	if err != nil {
		return err
	}
	st.rel = rel
	desc := rel.Desc()
	cap := run.env.batchSize(run.op)
	st.eager = run.env.Cfg.Vectorize.Deform == util.DeformEager

	colRel, isColumn := rel.(*storage.ColumnRelation)
	if isColumn && run.env.Cfg.Vectorize.ColumnStream {
		attnos := referencedAttrs(run.op, desc.Natts())
		st.colMap = make([]int, desc.Natts())
		for i := range st.colMap {
			st.colMap[i] = -1
		}
		types := make([]*common.TypeInfo, len(attnos))
		for k, attno := range attnos {
			st.colMap[attno] = k
			vid, ok := run.env.Types.VectorCounterpart(desc.Attrs[attno].Typ.Id)
			if !ok {
				return errors.Wrapf(common.ErrTypeNotFound, "vector type of %s", desc.Attrs[attno].Typ.Name)
			}
			types[k] = run.env.Types.MustLookup(vid)
		}
		st.colScan = colRel.BeginColumnScan(attnos)
		st.scanBatch = chunk.NewBatch(types, cap)
	} else {
		vdesc, err := desc.Vectorize(run.env.Types)
		if err != nil {
			return err
		}
		st.scanBatch = chunk.NewTupleBatch(vdesc.Types(), cap, storeKindOf(rel.Kind()), desc)
		st.pageScan = rel.BeginScan(run.env.Snap)
	}

	st.qualExec = NewExprExec(run.env, st.colMap, cap)
	if run.op.Targets != nil {
		st.projExec = st.qualExec
		st.outBatch = chunk.NewBatch(run.op.Desc.Types(), cap)
	}
	st.phase = ScanNotStarted
	util.Debug("vector scan init",
		zap.String("relation", rel.Name()),
		zap.String("store", st.scanBatch.Kind().String()),
		zap.Bool("columnStream", st.colScan != nil))
	return nil
}

// fillBatch reads the next rows into the scan batch. exhausted reports
// that the relation has no more rows.
func (run *Runner) fillBatch() (exhausted bool, err error) {
	st := &run.state.OprVScanState
	batch := st.scanBatch
	batch.Clear()
	if err = util.Inject(util.FAULTS_SCOPE_EXEC, "vscan.fill"); err != nil {
		return false, err
	}
	if st.colScan != nil {
		if st.colScan.Done() {
			return true, nil
		}
		n, err := st.colScan.Fill(run.env.Ctx, batch)
		if err != nil {
			return false, err
		}
		run.env.Metrics.ScannedRows.Add(float64(n))
		return st.colScan.Done(), nil
	}
	for batch.Count < batch.Cap() {
		tup, ok, err := st.pageScan.Next(run.env.Ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			exhausted = true
			break
		}
		batch.StoreTuple(tup.Data, tup.Page)
	}
	run.env.Metrics.ScannedRows.Add(float64(batch.Count))
	if st.eager {
		if err = batch.Materialize(); err != nil {
			return false, err
		}
	}
	return exhausted, nil
}

func (run *Runner) vscanExec() (*chunk.Batch, OperatorResult, error) {
	st := &run.state.OprVScanState
	switch st.phase {
	case ScanLastPartialEmitted, ScanDone:
		return run.vscanDone()
	case ScanNotStarted:
		st.phase = ScanScanning
	}
	for {
		exhausted, err := run.fillBatch()
		if err != nil {
			return nil, InvalidOpResult, err
		}
		batch := st.scanBatch
		survived := batch.Count > 0
		if survived && len(run.op.Quals) != 0 {
			before := batch.Live()
			survived, err = st.qualExec.ExecScanQual(run.op.Quals, batch, false)
			if err != nil {
				return nil, InvalidOpResult, err
			}
			run.env.Metrics.FilteredRows.Add(float64(before - batch.Live()))
		}
		if exhausted {
			batch.Finished = true
			st.phase = ScanLastPartialEmitted
			return run.vscanOutput()
		}
		if survived {
			return run.vscanOutput()
		}
	}
}

// vscanDone hands out the cleared output batch. The cursor is not
// touched again.
func (run *Runner) vscanDone() (*chunk.Batch, OperatorResult, error) {
	st := &run.state.OprVScanState
	st.phase = ScanDone
	st.scanBatch.Clear()
	if st.outBatch == nil {
		return st.scanBatch, Done, nil
	}
	st.outBatch.Clear()
	return st.outBatch, Done, nil
}

func (run *Runner) vscanOutput() (*chunk.Batch, OperatorResult, error) {
	st := &run.state.OprVScanState
	run.env.Metrics.Batch(run.op.Typ.String()).Inc()
	if st.outBatch == nil {
		return st.scanBatch, haveMoreOutput, nil
	}
	err := st.projExec.Project(run.op.Targets, st.scanBatch, st.outBatch)
	if err != nil {
		return nil, InvalidOpResult, err
	}
	return st.outBatch, haveMoreOutput, nil
}

func (run *Runner) vscanReScan() error {
	st := &run.state.OprVScanState
	if st.colScan != nil {
		st.colScan.Rescan()
	}
	if st.pageScan != nil {
		st.pageScan.Rescan()
	}
	st.scanBatch.Clear()
	if st.outBatch != nil {
		st.outBatch.Clear()
	}
	st.phase = ScanNotStarted
	return nil
}

func (run *Runner) vscanClose() error {
	st := &run.state.OprVScanState
	if st.colScan != nil {
		st.colScan.End()
	}
	if st.pageScan != nil {
		st.pageScan.End()
	}
	if st.scanBatch != nil {
		st.scanBatch.Release()
	}
	if st.outBatch != nil {
		st.outBatch.Release()
	}
	st.phase = ScanDone
	return nil
}
