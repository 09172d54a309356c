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
	"context"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/metrics"
	"github.com/daviszhen/vexec/pkg/plan"
	"github.com/daviszhen/vexec/pkg/storage"
	"github.com/daviszhen/vexec/pkg/util"
	"github.com/daviszhen/vexec/pkg/vtype"
)

// ExecEnv is what every operator of one query shares.
type ExecEnv struct {
	Ctx     context.Context
	Cfg     *util.Config
	Types   *common.TypeMap
	Ops     *vtype.Registry
	Catalog *storage.Catalog
	Snap    *storage.Snapshot
	Metrics *metrics.Metrics
}

func (env *ExecEnv) batchSize(op *plan.PlanNode) int {
	if op.BatchSize > 0 {
		return op.BatchSize
	}
	if env.Cfg != nil && env.Cfg.Vectorize.BatchSize > 0 {
		return env.Cfg.Vectorize.BatchSize
	}
	return util.DefaultVectorSize
}

type OperatorResult int

const (
	InvalidOpResult OperatorResult = 0
	NeedMoreInput   OperatorResult = 1
	haveMoreOutput  OperatorResult = 2
	Done            OperatorResult = 3
)

// Row is one output tuple of a row node.
type Row []common.Value

// Runner executes one plan node. Vector nodes produce batches through
// Execute, row nodes produce tuples through Next.
type Runner struct {
	env   *ExecEnv
	op    *plan.PlanNode
	state *OperatorState

	children []*Runner
}

func NewRunner(env *ExecEnv, op *plan.PlanNode) *Runner {
	return &Runner{
		env:   env,
		op:    op,
		state: &OperatorState{},
	}
}

func (run *Runner) Op() *plan.PlanNode {
	return run.op
}

func (run *Runner) initChildren() error {
	run.children = []*Runner{}
	for _, child := range run.op.Children {
		childRun := NewRunner(run.env, child)
		err := childRun.Init()
		if err != nil {
			return err
		}
		run.children = append(run.children, childRun)
	}
	return nil
}

func (run *Runner) Init() error {
	err := run.initChildren()
	if err != nil {
		return err
	}
	switch run.op.Typ {
	case plan.PT_VectorScan:
		return run.vscanInit()
	case plan.PT_VectorAgg:
		return run.vaggInit()
	case plan.PT_Unbatch:
		return run.unbatchInit()
	case plan.PT_SeqScan:
		return run.scanInit()
	case plan.PT_Agg:
		return run.aggInit()
	case plan.PT_Sort:
		return run.sortInit()
	case plan.PT_Limit:
		return run.limitInit()
	case plan.PT_Result:
		return run.resultInit()
	default:
		panic("usp")
	}
}

// Execute returns the next batch of a vector node. The batch stays
// valid until the next call. After the batch marked Finished every call
// returns Done with the node's batch cleared to zero rows.
func (run *Runner) Execute() (*chunk.Batch, OperatorResult, error) {
	switch run.op.Typ {
	case plan.PT_VectorScan:
		return run.vscanExec()
	case plan.PT_VectorAgg:
		return run.vaggExec()
	default:
		panic("usp")
	}
}

// Next returns the next row of a row node. ok is false at the end.
func (run *Runner) Next() (Row, bool, error) {
	if err := run.env.Ctx.Err(); err != nil {
		return nil, false, err
	}
	switch run.op.Typ {
	case plan.PT_Unbatch:
		return run.unbatchNext()
	case plan.PT_SeqScan:
		return run.scanNext()
	case plan.PT_Agg:
		return run.aggNext()
	case plan.PT_Sort:
		return run.sortNext()
	case plan.PT_Limit:
		return run.limitNext()
	case plan.PT_Result:
		return run.resultNext()
	default:
		panic("usp")
	}
}

// ReScan restarts the node and its children from the beginning.
func (run *Runner) ReScan() error {
	for _, child := range run.children {
		if err := child.ReScan(); err != nil {
			return err
		}
	}
	switch run.op.Typ {
	case plan.PT_VectorScan:
		return run.vscanReScan()
	case plan.PT_VectorAgg:
		return run.vaggReScan()
	case plan.PT_Unbatch:
		return run.unbatchReScan()
	case plan.PT_SeqScan:
		return run.scanReScan()
	case plan.PT_Agg:
		return run.aggReScan()
	case plan.PT_Sort:
		return run.sortReScan()
	case plan.PT_Limit:
		return run.limitReScan()
	case plan.PT_Result:
		return run.resultReScan()
	default:
		panic("usp")
	}
}

func (run *Runner) Close() error {
	for _, child := range run.children {
		err := child.Close()
		if err != nil {
			return err
		}
	}
	switch run.op.Typ {
	case plan.PT_VectorScan:
		return run.vscanClose()
	case plan.PT_VectorAgg:
		return run.vaggClose()
	case plan.PT_Unbatch:
		return run.unbatchClose()
	case plan.PT_SeqScan:
		return run.scanClose()
	case plan.PT_Agg:
		return run.aggClose()
	case plan.PT_Sort:
		return run.sortClose()
	case plan.PT_Limit:
		return run.limitClose()
	case plan.PT_Result:
		return run.resultClose()
	default:
		panic("usp")
	}
}
