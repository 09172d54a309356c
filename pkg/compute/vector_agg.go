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
	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/vtype"
)

func (run *Runner) vaggInit() error {
	st := &run.state.OprVAggState
	entries, err := lookupAggs(run.env, run.op.Aggs, true)
	if err != nil {
		return err
	}
	st.aggEntries = entries
	childCap := run.env.batchSize(run.op.Children[0])
	st.argExec = NewExprExec(run.env, nil, childCap)
	st.entries = make([][]vtype.TransValue, childCap)
	st.table = newGroupTable(len(entries))

	cap := run.env.batchSize(run.op)
	types := make([]*common.TypeInfo, 0, len(run.op.GroupBys)+len(run.op.Aggs))
	for _, gb := range run.op.GroupBys {
		types = append(types, run.env.Types.MustLookup(gb.DataTyp))
	}
	for _, agg := range run.op.Aggs {
		types = append(types, run.env.Types.MustLookup(agg.DataTyp))
	}
	st.aggRow = chunk.NewBatch(types, cap)
	st.outExec = NewExprExec(run.env, nil, cap)
	st.outBatch = chunk.NewBatch(run.op.Desc.Types(), cap)
	return nil
}

// vaggBuild drains the child into the group table.
func (run *Runner) vaggBuild() error {
	st := &run.state.OprVAggState
	ngroup := len(run.op.GroupBys)
	var plain *aggGroup
	if ngroup == 0 {
		//one group, even without input
		plain = st.table.lookup([]common.Value{})
	}
	keyCols := make([]*chunk.Column, ngroup)
	child := run.children[0]
	for {
		batch, res, err := child.Execute()
		if err != nil {
			return err
		}
		if res == Done {
			break
		}
		count := batch.Count
		if count == 0 {
			continue
		}
		if len(st.entries) < count {
			st.entries = make([][]vtype.TransValue, count)
		}
		for k, gb := range run.op.GroupBys {
			if keyCols[k], err = st.argExec.Eval(gb, batch, batch.Skip); err != nil {
				return err
			}
		}
		for i := 0; i < count; i++ {
			if batch.Skip[i] {
				st.entries[i] = nil
				continue
			}
			if plain != nil {
				st.entries[i] = plain.states
				continue
			}
			keys := make([]common.Value, ngroup)
			for k, col := range keyCols {
				keys[k] = col.GetValue(i)
			}
			st.entries[i] = st.table.lookup(keys).states
		}
		for j, agg := range run.op.Aggs {
			var in *chunk.Column
			if !agg.AggStar {
				if in, err = st.argExec.Eval(agg.Children[0], batch, batch.Skip); err != nil {
					return err
				}
			}
			if err = st.aggEntries[j].Trans(st.entries, j, in, batch.Skip, count); err != nil {
				return err
			}
		}
	}
	st.groups = st.table.sorted()
	st.built = true
	return nil
}

func (run *Runner) vaggExec() (*chunk.Batch, OperatorResult, error) {
	st := &run.state.OprVAggState
	if st.finished {
		st.outBatch.Clear()
		return st.outBatch, Done, nil
	}
	if !st.built {
		if err := run.vaggBuild(); err != nil {
			return nil, InvalidOpResult, err
		}
	}
	vals := make([]common.Value, len(st.aggRow.Cols))
	ngroup := len(run.op.GroupBys)
	for {
		if st.pos >= len(st.groups) {
			st.finished = true
			st.outBatch.Clear()
			return st.outBatch, Done, nil
		}
		st.aggRow.Clear()
		for st.pos < len(st.groups) && st.aggRow.Count < st.aggRow.Cap() {
			group := st.groups[st.pos]
			st.pos++
			copy(vals, group.keys)
			for j, entry := range st.aggEntries {
				val, err := entry.Finish(&group.states[j])
				if err != nil {
					return nil, InvalidOpResult, err
				}
				vals[ngroup+j] = val
			}
			st.aggRow.AppendRow(vals)
		}
		last := st.pos >= len(st.groups)
		survived := true
		if len(run.op.Quals) != 0 {
			var err error
			survived, err = st.outExec.ExecScanQual(run.op.Quals, st.aggRow, false)
			if err != nil {
				return nil, InvalidOpResult, err
			}
		}
		if last {
			st.aggRow.Finished = true
			st.finished = true
		}
		if survived || last {
			if err := st.outExec.Project(run.op.Targets, st.aggRow, st.outBatch); err != nil {
				return nil, InvalidOpResult, err
			}
			run.env.Metrics.Batch(run.op.Typ.String()).Inc()
			return st.outBatch, haveMoreOutput, nil
		}
	}
}

func (run *Runner) vaggReScan() error {
	st := &run.state.OprVAggState
	st.table = newGroupTable(len(st.aggEntries))
	st.groups = nil
	st.pos = 0
	st.built = false
	st.finished = false
	st.aggRow.Clear()
	st.outBatch.Clear()
	return nil
}

func (run *Runner) vaggClose() error {
	st := &run.state.OprVAggState
	if st.aggRow != nil {
		st.aggRow.Release()
	}
	if st.outBatch != nil {
		st.outBatch.Release()
	}
	st.groups = nil
	st.finished = true
	return nil
}
