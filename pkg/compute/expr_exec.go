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
	"github.com/lib/pq/oid"
	"github.com/pkg/errors"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/plan"
	"github.com/daviszhen/vexec/pkg/vtype"
)

// ExprExec evaluates vectorized expressions over a batch. Every
// expression node owns one scratch column, allocated on first use and
// reused for every later batch.
type ExprExec struct {
	types *common.TypeMap
	ops   *vtype.Registry
	// colMap maps the AttNo of a Var to a batch column, nil is identity
	colMap  []int
	cap     int
	scratch map[*plan.Expr]*chunk.Column
	kernels map[*plan.Expr]vtype.Kernel
}

func NewExprExec(env *ExecEnv, colMap []int, cap int) *ExprExec {
	return &ExprExec{
		types:   env.Types,
		ops:     env.Ops,
		colMap:  colMap,
		cap:     cap,
		scratch: make(map[*plan.Expr]*chunk.Column),
		kernels: make(map[*plan.Expr]vtype.Kernel),
	}
}

func (exec *ExprExec) column(attno int) int {
	if exec.colMap == nil {
		return attno
	}
	return exec.colMap[attno]
}

func (exec *ExprExec) scratchOf(e *plan.Expr) *chunk.Column {
	col, has := exec.scratch[e]
	if !has {
		col = chunk.NewColumn(exec.types.MustLookup(e.DataTyp), exec.cap)
		exec.scratch[e] = col
	}
	return col
}

func (exec *ExprExec) kernelOf(e *plan.Expr, name string, sig []oid.Oid) (vtype.Kernel, error) {
	if kernel, has := exec.kernels[e]; has {
		return kernel, nil
	}
	entry, ok := exec.ops.LookupOp(name, sig)
	if !ok || entry.Kernel == nil {
		return nil, errors.Errorf("operator %s has no batch implementation", name)
	}
	exec.kernels[e] = entry.Kernel
	return entry.Kernel, nil
}

// Eval computes e for the rows of batch not marked in skip. The result
// is only meaningful at those rows.
func (exec *ExprExec) Eval(e *plan.Expr, batch *chunk.Batch, skip []bool) (*chunk.Column, error) {
	count := batch.Count
	switch e.Typ {
	case plan.ET_Var, plan.ET_Aggref:
		return batch.Column(exec.column(e.AttNo))
	case plan.ET_Const:
		res := exec.scratchOf(e)
		res.Fill(e.Const, count)
		return res, nil
	case plan.ET_Op:
		args := make([]*chunk.Column, len(e.Children))
		sig := make([]oid.Oid, len(e.Children))
		for i, child := range e.Children {
			col, err := exec.Eval(child, batch, skip)
			if err != nil {
				return nil, err
			}
			args[i] = col
			sig[i] = child.DataTyp
		}
		kernel, err := exec.kernelOf(e, e.Name, sig)
		if err != nil {
			return nil, err
		}
		res := exec.scratchOf(e)
		res.Reset()
		if err = kernel(res, args, skip, count); err != nil {
			return nil, err
		}
		return res, nil
	case plan.ET_Bool:
		return exec.evalBool(e, batch, skip)
	default:
		panic("usp")
	}
}

// evalBool folds the binary and/or kernel over the children.
func (exec *ExprExec) evalBool(e *plan.Expr, batch *chunk.Batch, skip []bool) (*chunk.Column, error) {
	count := batch.Count
	args := make([]*chunk.Column, len(e.Children))
	for i, child := range e.Children {
		col, err := exec.Eval(child, batch, skip)
		if err != nil {
			return nil, err
		}
		args[i] = col
	}
	res := exec.scratchOf(e)
	res.Reset()
	if e.BoolOp == plan.BO_Not {
		kernel, err := exec.kernelOf(e, "not", []oid.Oid{oid.T_bool})
		if err != nil {
			return nil, err
		}
		return res, kernel(res, args[:1], skip, count)
	}
	if len(args) == 1 {
		res.CopyFrom(args[0], count)
		return res, nil
	}
	kernel, err := exec.kernelOf(e, e.BoolOp.String(), []oid.Oid{oid.T_bool, oid.T_bool})
	if err != nil {
		return nil, err
	}
	if err = kernel(res, args[:2], skip, count); err != nil {
		return nil, err
	}
	for _, arg := range args[2:] {
		if err = kernel(res, []*chunk.Column{res, arg}, skip, count); err != nil {
			return nil, err
		}
	}
	return res, nil
}
