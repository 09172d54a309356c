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
	"slices"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/plan"
	"github.com/daviszhen/vexec/pkg/vtype"
)

// SeqScan

func (run *Runner) scanInit() error {
	st := &run.state.OprScanState
	rel, err := run.env.Catalog.Lookup(run.op.Relation)
	if err != nil {
		return err
	}
	desc := rel.Desc()
	st.deformer = chunk.NewDeformer(desc, rel.TupleFormat())
	st.values = make([]common.Value, desc.Natts())
	st.pageScan = rel.BeginScan(run.env.Snap)
	run.state.rowExec = NewRowExprExec(run.env)
	return nil
}

func (run *Runner) scanNext() (Row, bool, error) {
	st := &run.state.OprScanState
	for {
		tup, ok, err := st.pageScan.Next(run.env.Ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if err = st.deformer.DeformRow(tup.Data, st.values); err != nil {
			return nil, false, err
		}
		run.env.Metrics.ScannedRows.Inc()
		pass, err := run.state.rowExec.Qual(run.op.Quals, st.values)
		if err != nil {
			return nil, false, err
		}
		if !pass {
			run.env.Metrics.FilteredRows.Inc()
			continue
		}
		if run.op.Targets == nil {
			return slices.Clone(Row(st.values)), true, nil
		}
		row, err := run.state.rowExec.Project(run.op.Targets, st.values)
		if err != nil {
			return nil, false, err
		}
		return row, true, nil
	}
}

func (run *Runner) scanReScan() error {
	run.state.OprScanState.pageScan.Rescan()
	return nil
}

func (run *Runner) scanClose() error {
	if scan := run.state.OprScanState.pageScan; scan != nil {
		scan.End()
	}
	return nil
}

// Agg

func (run *Runner) aggInit() error {
	st := &run.state.OprAggrState
	entries, err := lookupAggs(run.env, run.op.Aggs, false)
	if err != nil {
		return err
	}
	st.rowAggEntries = entries
	st.rowTable = newGroupTable(len(entries))
	run.state.rowExec = NewRowExprExec(run.env)
	return nil
}

func (run *Runner) groupKeys(row Row) ([]common.Value, error) {
	keys := make([]common.Value, len(run.op.GroupBys))
	for k, gb := range run.op.GroupBys {
		val, err := run.state.rowExec.Eval(gb, row)
		if err != nil {
			return nil, err
		}
		keys[k] = val
	}
	return keys, nil
}

func (run *Runner) advance(group *aggGroup, row Row) error {
	st := &run.state.OprAggrState
	for j, agg := range run.op.Aggs {
		var val common.Value
		if !agg.AggStar {
			var err error
			if val, err = run.state.rowExec.Eval(agg.Children[0], row); err != nil {
				return err
			}
		}
		if err := st.rowAggEntries[j].Advance(group.states, j, val); err != nil {
			return err
		}
	}
	return nil
}

// finishGroup forms the output row of group. ok is false when HAVING
// rejects it.
func (run *Runner) finishGroup(group *aggGroup) (Row, bool, error) {
	st := &run.state.OprAggrState
	aggRow := make(Row, 0, len(group.keys)+len(group.states))
	aggRow = append(aggRow, group.keys...)
	for j, entry := range st.rowAggEntries {
		val, err := entry.Finish(&group.states[j])
		if err != nil {
			return nil, false, err
		}
		aggRow = append(aggRow, val)
	}
	pass, err := run.state.rowExec.Qual(run.op.Quals, aggRow)
	if err != nil || !pass {
		return nil, false, err
	}
	row, err := run.state.rowExec.Project(run.op.Targets, aggRow)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func (run *Runner) aggNext() (Row, bool, error) {
	if run.op.Strategy == plan.AggSorted && len(run.op.GroupBys) != 0 {
		return run.sortedAggNext()
	}
	st := &run.state.OprAggrState
	if !st.rowBuilt {
		if len(run.op.GroupBys) == 0 {
			st.rowTable.lookup([]common.Value{})
		}
		for {
			row, ok, err := run.children[0].Next()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				break
			}
			keys, err := run.groupKeys(row)
			if err != nil {
				return nil, false, err
			}
			if err = run.advance(st.rowTable.lookup(keys), row); err != nil {
				return nil, false, err
			}
		}
		st.rowGroups = st.rowTable.sorted()
		st.rowBuilt = true
	}
	for st.rowPos < len(st.rowGroups) {
		group := st.rowGroups[st.rowPos]
		st.rowPos++
		row, ok, err := run.finishGroup(group)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return row, true, nil
		}
	}
	return nil, false, nil
}

// sortedAggNext closes a group when the key changes. The input must be
// ordered by the group keys.
func (run *Runner) sortedAggNext() (Row, bool, error) {
	st := &run.state.OprAggrState
	for {
		if st.inputEnd {
			if st.cur == nil {
				return nil, false, nil
			}
			group := st.cur
			st.cur = nil
			row, ok, err := run.finishGroup(group)
			if err != nil || ok {
				return row, ok, err
			}
			continue
		}
		row, ok, err := run.children[0].Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			st.inputEnd = true
			continue
		}
		keys, err := run.groupKeys(row)
		if err != nil {
			return nil, false, err
		}
		var done *aggGroup
		if st.cur != nil && compareKeys(keys, st.cur.keys) != 0 {
			done = st.cur
			st.cur = nil
		}
		if st.cur == nil {
			st.cur = &aggGroup{
				keys:   keys,
				states: make([]vtype.TransValue, len(st.rowAggEntries)),
			}
		}
		if err = run.advance(st.cur, row); err != nil {
			return nil, false, err
		}
		if done != nil {
			out, ok, err := run.finishGroup(done)
			if err != nil || ok {
				return out, ok, err
			}
		}
	}
}

func (run *Runner) aggReScan() error {
	st := &run.state.OprAggrState
	st.rowTable = newGroupTable(len(st.rowAggEntries))
	st.rowGroups = nil
	st.rowPos = 0
	st.rowBuilt = false
	st.cur = nil
	st.inputEnd = false
	return nil
}

func (run *Runner) aggClose() error {
	run.state.OprAggrState.rowGroups = nil
	return nil
}

// Sort

func (run *Runner) sortInit() error {
	return nil
}

func compareRows(keys []plan.SortKey) func(a, b Row) int {
	return func(a, b Row) int {
		for _, key := range keys {
			x, y := a[key.Col], b[key.Col]
			var c int
			switch {
			case x.IsNull && y.IsNull:
			case x.IsNull:
				c = 1
				if key.NullsFirst {
					c = -1
				}
			case y.IsNull:
				c = -1
				if key.NullsFirst {
					c = 1
				}
			default:
				c = common.CompareValue(x, y)
				if key.Desc {
					c = -c
				}
			}
			if c != 0 {
				return c
			}
		}
		return 0
	}
}

func (run *Runner) sortNext() (Row, bool, error) {
	st := &run.state.OprSortState
	if !st.sorted {
		for {
			row, ok, err := run.children[0].Next()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				break
			}
			st.rows = append(st.rows, row)
		}
		slices.SortStableFunc(st.rows, compareRows(run.op.SortKeys))
		st.sorted = true
	}
	if st.sortPos >= len(st.rows) {
		return nil, false, nil
	}
	row := st.rows[st.sortPos]
	st.sortPos++
	return row, true, nil
}

func (run *Runner) sortReScan() error {
	run.state.OprSortState = OprSortState{}
	return nil
}

func (run *Runner) sortClose() error {
	run.state.OprSortState = OprSortState{}
	return nil
}

// Limit

func (run *Runner) limitInit() error {
	return nil
}

func (run *Runner) limitNext() (Row, bool, error) {
	st := &run.state.OprLimitState
	for st.skipped < run.op.Offset {
		_, ok, err := run.children[0].Next()
		if err != nil || !ok {
			return nil, false, err
		}
		st.skipped++
	}
	if run.op.Limit != plan.NoLimit && st.returned >= run.op.Limit {
		return nil, false, nil
	}
	row, ok, err := run.children[0].Next()
	if err != nil || !ok {
		return nil, false, err
	}
	st.returned++
	return row, true, nil
}

func (run *Runner) limitReScan() error {
	run.state.OprLimitState = OprLimitState{}
	return nil
}

func (run *Runner) limitClose() error {
	return nil
}

// Result

func (run *Runner) resultInit() error {
	run.state.rowExec = NewRowExprExec(run.env)
	return nil
}

func (run *Runner) resultNext() (Row, bool, error) {
	st := &run.state.OprResultState
	if st.resultDone {
		return nil, false, nil
	}
	st.resultDone = true
	pass, err := run.state.rowExec.Qual(run.op.Quals, nil)
	if err != nil || !pass {
		return nil, false, err
	}
	row, err := run.state.rowExec.Project(run.op.Targets, nil)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func (run *Runner) resultReScan() error {
	run.state.OprResultState = OprResultState{}
	return nil
}

func (run *Runner) resultClose() error {
	return nil
}
